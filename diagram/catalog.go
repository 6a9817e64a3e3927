package diagram

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// ProviderOrder 命名空间绑定 provider 的固定顺序，后者覆盖前者的同名类
var ProviderOrder = []string{
	"azure", "aws", "gcp", "saas", "onprem", "gis", "elastic", "programming", "generic", "k8s",
}

// Provider 一个图标提供方（云厂商、本地组件等）
type Provider struct {
	Name     string    `yaml:"name" json:"name"`
	Color    string    `yaml:"color" json:"color"`
	Services []Service `yaml:"services" json:"services"`
}

// Service provider 下的服务分类
type Service struct {
	Name    string            `yaml:"name" json:"name"`
	Classes []string          `yaml:"classes" json:"classes"`
	Aliases map[string]string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// NodeClass 可在脚本中调用的节点类
type NodeClass struct {
	Provider string
	Service  string
	// Name 脚本中绑定的名称
	Name string
	// Target 别名指向的类名；非别名时与 Name 相同
	Target string
	Color  string
}

// Icon 返回图标相对 icon 目录的路径
func (c NodeClass) Icon() string {
	return c.Provider + "/" + c.Service + "/" + snakeCase(c.Target) + ".png"
}

// Qualified 返回 provider.service.Name 形式的完整名称
func (c NodeClass) Qualified() string {
	return c.Provider + "." + c.Service + "." + c.Name
}

// Catalog 节点类目录，构造后只读
type Catalog struct {
	providers []Provider
	byName    map[string]*Provider
	index     map[string]NodeClass
}

// LoadCatalog 解析 YAML 格式的目录
func LoadCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Providers []Provider `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := &Catalog{byName: make(map[string]*Provider, len(doc.Providers))}
	for i := range doc.Providers {
		p := doc.Providers[i]
		if p.Name == "" {
			return nil, fmt.Errorf("catalog provider %d has no name", i)
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate catalog provider %q", p.Name)
		}
		for _, svc := range p.Services {
			known := make(map[string]bool, len(svc.Classes))
			for _, cls := range svc.Classes {
				if !isIdentifier(cls) {
					return nil, fmt.Errorf("invalid class name %q in %s.%s", cls, p.Name, svc.Name)
				}
				known[cls] = true
			}
			for alias, target := range svc.Aliases {
				if !isIdentifier(alias) || !known[target] {
					return nil, fmt.Errorf("invalid alias %s -> %s in %s.%s", alias, target, p.Name, svc.Name)
				}
			}
		}
		c.providers = append(c.providers, p)
	}
	for i := range c.providers {
		c.byName[c.providers[i].Name] = &c.providers[i]
	}
	c.buildIndex()
	return c, nil
}

var (
	defaultCatalog     *Catalog
	defaultCatalogErr  error
	defaultCatalogOnce sync.Once
)

// DefaultCatalog 返回内嵌目录。内嵌内容无法解析属于构建错误，直接 panic。
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = LoadCatalog(catalogYAML)
	})
	if defaultCatalogErr != nil {
		panic(defaultCatalogErr)
	}
	return defaultCatalog
}

// Providers 返回目录中的 provider 名称，按文件顺序
func (c *Catalog) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name
	}
	return names
}

// Classes 返回所有可绑定的节点类，按名称排序
func (c *Catalog) Classes() []NodeClass {
	out := make([]NodeClass, 0, len(c.index))
	for _, cls := range c.index {
		out = append(out, cls)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup 按绑定名称查找节点类
func (c *Catalog) Lookup(name string) (NodeClass, bool) {
	cls, ok := c.index[name]
	return cls, ok
}

// buildIndex 按 ProviderOrder 建立名称索引，同名类以后出现者为准
func (c *Catalog) buildIndex() {
	c.index = make(map[string]NodeClass)
	for _, name := range ProviderOrder {
		p, ok := c.byName[name]
		if !ok {
			continue
		}
		for _, svc := range p.Services {
			for _, cls := range svc.Classes {
				c.index[cls] = NodeClass{Provider: p.Name, Service: svc.Name, Name: cls, Target: cls, Color: p.Color}
			}
			for alias, target := range svc.Aliases {
				c.index[alias] = NodeClass{Provider: p.Name, Service: svc.Name, Name: alias, Target: target, Color: p.Color}
			}
		}
	}
}

// IconListing 图标列表查询结果
type IconListing struct {
	Providers  map[string]map[string][]string `json:"providers"`
	Filtered   bool                           `json:"filtered"`
	FilterInfo map[string]string              `json:"filter_info,omitempty"`
}

// ListIcons 按 provider / service 子串过滤（不区分大小写）列出图标
func (c *Catalog) ListIcons(providerFilter, serviceFilter string) IconListing {
	listing := IconListing{Providers: make(map[string]map[string][]string)}
	pf := strings.ToLower(providerFilter)
	sf := strings.ToLower(serviceFilter)

	for _, p := range c.providers {
		if pf != "" && !strings.Contains(strings.ToLower(p.Name), pf) {
			continue
		}
		services := make(map[string][]string)
		for _, svc := range p.Services {
			if sf != "" && !strings.Contains(strings.ToLower(svc.Name), sf) {
				continue
			}
			icons := make([]string, 0, len(svc.Classes)+len(svc.Aliases))
			icons = append(icons, svc.Classes...)
			for alias := range svc.Aliases {
				icons = append(icons, alias)
			}
			if len(icons) == 0 {
				continue
			}
			sort.Strings(icons)
			services[svc.Name] = append(services[svc.Name], icons...)
		}
		if len(services) > 0 {
			listing.Providers[p.Name] = services
		}
	}

	if providerFilter != "" || serviceFilter != "" {
		listing.Filtered = true
		listing.FilterInfo = make(map[string]string)
		if providerFilter != "" {
			listing.FilterInfo["provider_filter"] = providerFilter
		}
		if serviceFilter != "" {
			listing.FilterInfo["service_filter"] = serviceFilter
		}
	}
	return listing
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// snakeCase 将 CamelCase 类名转换为图标文件名，连续大写视为一个词
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

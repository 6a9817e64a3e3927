package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog_Loads(t *testing.T) {
	cat := DefaultCatalog()
	assert.Equal(t, ProviderOrder, cat.Providers())
	assert.NotEmpty(t, cat.Classes())
}

func TestCatalog_Lookup(t *testing.T) {
	cat := DefaultCatalog()

	tests := []struct {
		name     string
		provider string
		service  string
		target   string
	}{
		{"ApplicationGateway", "azure", "network", "ApplicationGateway"},
		{"AppServices", "azure", "web", "AppServices"},
		{"CosmosDb", "azure", "database", "CosmosDb"},
		{"EC2", "aws", "compute", "EC2"},
		{"ELB", "aws", "network", "ElasticLoadBalancing"},
		{"PostgreSQL", "onprem", "database", "Postgresql"},
		{"Predefined", "programming", "flowchart", "PredefinedProcess"},
		// k8s 最后绑定，覆盖 onprem 的 User
		{"User", "k8s", "rbac", "User"},
		{"Service", "k8s", "network", "SVC"},
		{"StatefulSet", "k8s", "compute", "STS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls, ok := cat.Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.provider, cls.Provider)
			assert.Equal(t, tt.service, cls.Service)
			assert.Equal(t, tt.target, cls.Target)
		})
	}

	_, ok := cat.Lookup("Subprocess")
	assert.False(t, ok)
}

func TestNodeClass_Icon(t *testing.T) {
	cls, ok := DefaultCatalog().Lookup("ELB")
	require.True(t, ok)
	assert.Equal(t, "aws/network/elastic_load_balancing.png", cls.Icon())
	assert.Equal(t, "aws.network.ELB", cls.Qualified())
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"EC2":                "ec2",
		"ApplicationGateway": "application_gateway",
		"SQLDatabases":       "sql_databases",
		"DNSZones":           "dns_zones",
		"VMScaleSet":         "vm_scale_set",
		"Pod":                "pod",
	}
	for in, want := range tests {
		assert.Equal(t, want, snakeCase(in), in)
	}
}

func TestCatalog_ListIcons(t *testing.T) {
	cat := DefaultCatalog()

	all := cat.ListIcons("", "")
	assert.False(t, all.Filtered)
	assert.Nil(t, all.FilterInfo)
	assert.Len(t, all.Providers, len(ProviderOrder))

	azure := cat.ListIcons("AZ", "")
	assert.True(t, azure.Filtered)
	assert.Equal(t, map[string]string{"provider_filter": "AZ"}, azure.FilterInfo)
	require.Len(t, azure.Providers, 1)
	assert.Contains(t, azure.Providers["azure"]["network"], "ApplicationGateway")

	flow := cat.ListIcons("", "flow")
	require.Len(t, flow.Providers, 1)
	icons := flow.Providers["programming"]["flowchart"]
	assert.Contains(t, icons, "Decision")
	assert.Contains(t, icons, "Predefined")
	assert.IsIncreasing(t, icons)

	none := cat.ListIcons("nope", "")
	assert.Empty(t, none.Providers)
	assert.True(t, none.Filtered)
}

func TestLoadCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "providers: ["},
		{"missing name", "providers:\n  - color: red\n"},
		{"duplicate provider", "providers:\n  - name: a\n  - name: a\n"},
		{"bad class", "providers:\n  - name: a\n    services:\n      - name: s\n        classes: [\"not a name\"]\n"},
		{"dangling alias", "providers:\n  - name: a\n    services:\n      - name: s\n        classes: [X]\n        aliases: {Y: Z}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

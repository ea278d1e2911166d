package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"shipyard/internal/api"
)

func testInstance(components ...api.Component) *api.Instance {
	return &api.Instance{
		UUID:        "inst-1",
		Application: api.Application{UUID: "app-1", Name: "shop"},
		Environment: api.Environment{
			UUID:     "env-1",
			Name:     "prod",
			Settings: map[string]string{"LOG_LEVEL": "info"},
		},
		Image:      "registry.example.com/shop",
		Version:    "1.4.2",
		Components: components,
	}
}

func webapp(visibility api.Visibility) api.Component {
	return api.Component{
		UUID:       "comp-web",
		Name:       "web",
		Type:       api.ComponentTypeWebapp,
		Enabled:    true,
		Visibility: visibility,
		Settings: api.ComponentSettings{
			Webapp: &api.WebappSettings{
				Exposure: api.Exposure{Protocol: api.ProtocolHTTP, Port: 8080},
				URL:      "https://shop.example.com/",
			},
			Command: api.Command{"gunicorn", "app:main"},
			Envs:    []api.EnvVar{{Key: "MODE", Value: "web"}},
			CPU:     0.5,
			Memory:  512,
		},
	}
}

func templatesFor(t api.ComponentType) []api.TemplateDocument {
	var out []api.TemplateDocument
	for _, doc := range BuiltinTemplates() {
		if doc.ComponentType == t {
			out = append(out, doc)
		}
	}
	return out
}

func clusterExposure() api.ExposureResolution {
	return api.ExposureResolution{Requested: api.VisibilityCluster, Effective: api.VisibilityCluster}
}

func kinds(docs []api.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Key.Kind)
	}
	return out
}

func TestResolveWebappClusterVisibility(t *testing.T) {
	comp := webapp(api.VisibilityCluster)
	r := NewResolver()

	docs, err := r.Resolve(Input{
		Instance:  testInstance(comp),
		Component: comp,
		Exposure:  clusterExposure(),
		Templates: templatesFor(api.ComponentTypeWebapp),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Deployment", "Service"}, kinds(docs))

	for i, doc := range docs {
		assert.Equal(t, i, doc.Order)
		assert.Equal(t, "shop", doc.Key.Namespace)
		assert.Equal(t, "web", doc.Key.Name)
		assert.Equal(t, "comp-web", doc.ComponentUUID)
		assert.NotEmpty(t, doc.Digest)

		labels := doc.Object.GetLabels()
		assert.Equal(t, api.ManagedByValue, labels[api.LabelManagedBy])
		assert.Equal(t, "inst-1", labels[api.LabelInstance])
		assert.Equal(t, "comp-web", labels[api.LabelComponent])

		owner, ok := api.OwnershipOf(doc.Object)
		require.True(t, ok)
		assert.Equal(t, "comp-web", owner.ComponentUUID)
		assert.Equal(t, doc.Digest, doc.Object.GetAnnotations()[api.AnnotationDigest])
	}

	containers, found, err := unstructured.NestedSlice(docs[0].Object.Object, "spec", "template", "spec", "containers")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, containers, 1)
	container := containers[0].(map[string]interface{})
	assert.Equal(t, "registry.example.com/shop:1.4.2", container["image"])
	assert.Equal(t, []interface{}{"gunicorn", "app:main"}, container["command"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"name": "LOG_LEVEL", "value": "info"},
		map[string]interface{}{"name": "MODE", "value": "web"},
	}, container["env"])

	replicas, _, _ := unstructured.NestedInt64(docs[0].Object.Object, "spec", "replicas")
	assert.Equal(t, int64(1), replicas)
}

func TestResolveIsDeterministic(t *testing.T) {
	comp := webapp(api.VisibilityCluster)
	in := Input{
		Instance:  testInstance(comp),
		Component: comp,
		Exposure:  clusterExposure(),
		Templates: templatesFor(api.ComponentTypeWebapp),
	}
	r := NewResolver()

	first, err := r.Resolve(in)
	require.NoError(t, err)
	second, err := r.Resolve(in)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Digest, second[i].Digest)
		assert.Equal(t, first[i].Object.Object, second[i].Object.Object)
	}

	in.Instance.Version = "1.4.3"
	third, err := r.Resolve(in)
	require.NoError(t, err)
	assert.NotEqual(t, first[0].Digest, third[0].Digest, "image change must change the deployment digest")
	assert.Equal(t, first[1].Digest, third[1].Digest, "service does not depend on the version")
}

func TestResolveRoutedWebapp(t *testing.T) {
	comp := webapp(api.VisibilityPublic)
	exposure := api.ExposureResolution{
		Requested: api.VisibilityPublic,
		Effective: api.VisibilityPublic,
		RouteKind: api.RouteKindHTTP,
		Gateway:   &api.GatewayReference{Namespace: "gateway-system", Name: "public"},
	}

	docs, err := NewResolver().Resolve(Input{
		Instance:  testInstance(comp),
		Component: comp,
		Exposure:  exposure,
		Templates: templatesFor(api.ComponentTypeWebapp),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Deployment", "Service", "HTTPRoute"}, kinds(docs))

	route := docs[2]
	assert.Equal(t, "gateway.networking.k8s.io/v1", route.APIVersion)
	parents, _, _ := unstructured.NestedSlice(route.Object.Object, "spec", "parentRefs")
	require.Len(t, parents, 1)
	assert.Equal(t, map[string]interface{}{"namespace": "gateway-system", "name": "public"}, parents[0])

	hostnames, _, _ := unstructured.NestedStringSlice(route.Object.Object, "spec", "hostnames")
	assert.Equal(t, []string{"shop.example.com"}, hostnames)
}

func TestResolveTCPRouteUsesAlphaVersion(t *testing.T) {
	comp := webapp(api.VisibilityPrivate)
	comp.Settings.Webapp.Exposure.Protocol = api.ProtocolTCP
	comp.Settings.Webapp.URL = ""

	docs, err := NewResolver().Resolve(Input{
		Instance:  testInstance(comp),
		Component: comp,
		Exposure: api.ExposureResolution{
			Requested: api.VisibilityPrivate,
			Effective: api.VisibilityPrivate,
			RouteKind: api.RouteKindTCP,
			Gateway:   &api.GatewayReference{Namespace: "gw", Name: "internal"},
		},
		Templates: templatesFor(api.ComponentTypeWebapp),
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "TCPRoute", docs[2].Key.Kind)
	assert.Equal(t, "gateway.networking.k8s.io/v1alpha2", docs[2].APIVersion)
	_, found, _ := unstructured.NestedFieldNoCopy(docs[2].Object.Object, "spec", "hostnames")
	assert.False(t, found)
}

func TestResolveAutoscaling(t *testing.T) {
	comp := webapp(api.VisibilityCluster)
	comp.Settings.Webapp.Autoscaling = &api.Autoscaling{Min: 2, Max: 5}

	docs, err := NewResolver().Resolve(Input{
		Instance:  testInstance(comp),
		Component: comp,
		Exposure:  clusterExposure(),
		Templates: templatesFor(api.ComponentTypeWebapp),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Deployment", "Service", "HorizontalPodAutoscaler"}, kinds(docs))

	_, found, _ := unstructured.NestedFieldNoCopy(docs[0].Object.Object, "spec", "replicas")
	assert.False(t, found, "replicas are owned by the autoscaler")

	max, _, _ := unstructured.NestedInt64(docs[2].Object.Object, "spec", "maxReplicas")
	assert.Equal(t, int64(5), max)
}

func TestResolveWorkerAndCron(t *testing.T) {
	worker := api.Component{
		UUID: "comp-worker", Name: "jobs", Type: api.ComponentTypeWorker, Enabled: true,
		Settings: api.ComponentSettings{Worker: &api.WorkerSettings{Replicas: 3}},
	}
	cron := api.Component{
		UUID: "comp-cron", Name: "nightly", Type: api.ComponentTypeCron, Enabled: true,
		Settings: api.ComponentSettings{Cron: &api.CronSettings{Schedule: "0 3 * * *"}},
	}
	inst := testInstance(worker, cron)
	r := NewResolver()

	docs, err := r.Resolve(Input{Instance: inst, Component: worker, Exposure: clusterExposure(), Templates: templatesFor(api.ComponentTypeWorker)})
	require.NoError(t, err)
	require.Equal(t, []string{"Deployment"}, kinds(docs))
	replicas, _, _ := unstructured.NestedInt64(docs[0].Object.Object, "spec", "replicas")
	assert.Equal(t, int64(3), replicas)

	docs, err = r.Resolve(Input{Instance: inst, Component: cron, Exposure: clusterExposure(), Templates: templatesFor(api.ComponentTypeCron)})
	require.NoError(t, err)
	require.Equal(t, []string{"CronJob"}, kinds(docs))
	schedule, _, _ := unstructured.NestedString(docs[0].Object.Object, "spec", "schedule")
	assert.Equal(t, "0 3 * * *", schedule)
}

func TestResolveSettingsValidation(t *testing.T) {
	tests := []struct {
		name   string
		comp   func() api.Component
		reason string
	}{
		{
			name: "webapp without settings",
			comp: func() api.Component {
				c := webapp(api.VisibilityCluster)
				c.Settings.Webapp = nil
				return c
			},
			reason: "webapp settings are required",
		},
		{
			name: "webapp without port",
			comp: func() api.Component {
				c := webapp(api.VisibilityCluster)
				c.Settings.Webapp.Exposure.Port = 0
				return c
			},
			reason: "port must be between",
		},
		{
			name: "webapp without protocol",
			comp: func() api.Component {
				c := webapp(api.VisibilityCluster)
				c.Settings.Webapp.Exposure.Protocol = ""
				return c
			},
			reason: "protocol is required",
		},
		{
			name: "public http without url",
			comp: func() api.Component {
				c := webapp(api.VisibilityPublic)
				c.Settings.Webapp.URL = ""
				return c
			},
			reason: "url is required",
		},
		{
			name: "cron with four fields",
			comp: func() api.Component {
				return api.Component{UUID: "c", Name: "cron", Type: api.ComponentTypeCron,
					Settings: api.ComponentSettings{Cron: &api.CronSettings{Schedule: "* * * *"}}}
			},
			reason: "five or six fields",
		},
		{
			name: "cron with bad field",
			comp: func() api.Component {
				return api.Component{UUID: "c", Name: "cron", Type: api.ComponentTypeCron,
					Settings: api.ComponentSettings{Cron: &api.CronSettings{Schedule: "0 25 * * *"}}}
			},
			reason: "invalid cron schedule",
		},
		{
			name: "cron without schedule",
			comp: func() api.Component {
				return api.Component{UUID: "c", Name: "cron", Type: api.ComponentTypeCron}
			},
			reason: "cron schedule is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := tt.comp()
			docs, err := NewResolver().Resolve(Input{
				Instance:  testInstance(comp),
				Component: comp,
				Exposure:  clusterExposure(),
				Templates: templatesFor(comp.Type),
			})
			assert.Nil(t, docs)
			var renderErr *api.RenderError
			require.True(t, errors.As(err, &renderErr), "expected RenderError, got %v", err)
			assert.Contains(t, renderErr.Error(), tt.reason)
		})
	}
}

func TestValidateCronSixFields(t *testing.T) {
	comp := api.Component{Type: api.ComponentTypeCron, Settings: api.ComponentSettings{Cron: &api.CronSettings{Schedule: "30 0 3 * * *"}}}
	assert.NoError(t, validateSettings(comp))
}

func customTemplate(name string, order int, content string, vars ...api.VariableSpec) api.TemplateDocument {
	return api.TemplateDocument{
		Name:          name,
		Version:       "v1",
		ComponentType: api.ComponentTypeWorker,
		RenderOrder:   order,
		Content:       content,
		Variables:     vars,
	}
}

func worker() api.Component {
	return api.Component{UUID: "comp-w", Name: "w", Type: api.ComponentTypeWorker, Enabled: true}
}

func TestResolveMissingVariables(t *testing.T) {
	comp := worker()
	tmpl := customTemplate("cm", 0, `apiVersion: v1
kind: ConfigMap
metadata:
  name: {{ .component.name }}
data:
  a: {{ .values.first | quote }}
  b: {{ .values.second | quote }}
`)

	docs, err := NewResolver().Resolve(Input{Instance: testInstance(comp), Component: comp, Exposure: clusterExposure(), Templates: []api.TemplateDocument{tmpl}})
	assert.Nil(t, docs)
	var renderErr *api.RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Equal(t, []string{"values.first", "values.second"}, renderErr.MissingVariables)
	assert.Equal(t, "cm", renderErr.Template)
}

func TestResolveVariableDefaults(t *testing.T) {
	comp := worker()
	comp.Settings.Values = map[string]interface{}{"first": "given"}
	tmpl := customTemplate("cm", 0, `apiVersion: v1
kind: ConfigMap
metadata:
  name: {{ .component.name }}
data:
  a: {{ .values.first | quote }}
  b: {{ .values.second | quote }}
`,
		api.VariableSpec{Name: "values.first", Default: "ignored"},
		api.VariableSpec{Name: "values.second", Default: "fallback"},
	)

	docs, err := NewResolver().Resolve(Input{Instance: testInstance(comp), Component: comp, Exposure: clusterExposure(), Templates: []api.TemplateDocument{tmpl}})
	require.NoError(t, err)
	data, _, _ := unstructured.NestedStringMap(docs[0].Object.Object, "data")
	assert.Equal(t, map[string]string{"a": "given", "b": "fallback"}, data)
}

func TestResolveRequiredVariable(t *testing.T) {
	comp := worker()
	tmpl := customTemplate("cm", 0, "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: x\n",
		api.VariableSpec{Name: "values.token", Required: true})

	_, err := NewResolver().Resolve(Input{Instance: testInstance(comp), Component: comp, Exposure: clusterExposure(), Templates: []api.TemplateDocument{tmpl}})
	var renderErr *api.RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Equal(t, []string{"values.token"}, renderErr.MissingVariables)
}

func TestResolveRenderOrderAndDisabled(t *testing.T) {
	comp := worker()
	disabled := false
	cm := func(name string) string {
		return "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: " + name + "\n"
	}
	off := customTemplate("off", 0, cm("off"))
	off.Enabled = &disabled

	docs, err := NewResolver().Resolve(Input{
		Instance:  testInstance(comp),
		Component: comp,
		Exposure:  clusterExposure(),
		Templates: []api.TemplateDocument{
			customTemplate("late", 5, cm("late")),
			off,
			customTemplate("early", 1, cm("early")+"---\n# comment only\n---\n"+cm("early-2")),
		},
	})
	require.NoError(t, err)
	var names []string
	for _, d := range docs {
		names = append(names, d.Key.Name)
	}
	assert.Equal(t, []string{"early", "early-2", "late"}, names)
}

func TestResolveRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{name: "cluster scoped", content: "apiVersion: v1\nkind: Namespace\nmetadata:\n  name: x\n", reason: "cluster-scoped kind"},
		{name: "foreign namespace", content: "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: x\n  namespace: other\n", reason: "targets namespace"},
		{name: "no name", content: "apiVersion: v1\nkind: ConfigMap\nmetadata: {}\n", reason: "no metadata.name"},
		{name: "duplicate", content: "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: x\n---\napiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: x\n", reason: "also rendered"},
		{name: "bad yaml", content: "apiVersion: v1\nkind: [\n", reason: "not valid YAML"},
		{name: "bad template", content: "{{ .component.name ", reason: "does not parse"},
		{name: "no templates", content: "", reason: "no enabled templates"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := worker()
			var templates []api.TemplateDocument
			if tt.content != "" {
				templates = append(templates, customTemplate("t", 0, tt.content))
			}
			_, err := NewResolver().Resolve(Input{Instance: testInstance(comp), Component: comp, Exposure: clusterExposure(), Templates: templates})
			var renderErr *api.RenderError
			require.True(t, errors.As(err, &renderErr), "expected RenderError, got %v", err)
			assert.Contains(t, renderErr.Error(), tt.reason)
		})
	}
}

func TestResolveOverridesAuthorOwnershipLabels(t *testing.T) {
	comp := worker()
	tmpl := customTemplate("cm", 0, `apiVersion: v1
kind: ConfigMap
metadata:
  name: x
  labels:
    shipyard.io/instance: someone-else
  annotations:
    shipyard.io/digest: forged
`)
	docs, err := NewResolver().Resolve(Input{Instance: testInstance(comp), Component: comp, Exposure: clusterExposure(), Templates: []api.TemplateDocument{tmpl}})
	require.NoError(t, err)
	assert.Equal(t, "inst-1", docs[0].Object.GetLabels()[api.LabelInstance])
	assert.Equal(t, docs[0].Digest, docs[0].Object.GetAnnotations()[api.AnnotationDigest])
}

func TestResolvePlaceholderEngine(t *testing.T) {
	comp := worker()
	tmpl := customTemplate("cm", 0, `apiVersion: v1
kind: ConfigMap
metadata:
  name: {{ .component.name }}-config
data:
  level: "{{ env.LOG_LEVEL }}"
  app: "{{ .application.name }}"
`)
	tmpl.Engine = api.TemplateEnginePlaceholder

	docs, err := NewResolver().Resolve(Input{Instance: testInstance(comp), Component: comp, Exposure: clusterExposure(), Templates: []api.TemplateDocument{tmpl}})
	require.NoError(t, err)
	assert.Equal(t, "w-config", docs[0].Key.Name)
	data, _, _ := unstructured.NestedStringMap(docs[0].Object.Object, "data")
	assert.Equal(t, map[string]string{"level": "info", "app": "shop"}, data)
}

func TestResolveUnknownEngine(t *testing.T) {
	comp := worker()
	tmpl := customTemplate("cm", 0, "x: y")
	tmpl.Engine = "jsonnet"
	_, err := NewResolver().Resolve(Input{Instance: testInstance(comp), Component: comp, Exposure: clusterExposure(), Templates: []api.TemplateDocument{tmpl}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template engine")
}

package template

import (
	"strings"

	"shipyard/internal/api"
)

// BuiltinVersion is the version of the templates shipped with the binary.
const BuiltinVersion = "builtin-1"

// containerBlock is the container list shared by every workload template,
// written at zero indentation.
const containerBlock = `containers:
  - name: {{ .component.name }}
    image: {{ printf "%s:%s" .instance.image .instance.version | quote }}
    {{- if .settings.command }}
    command:
      {{- range .settings.command }}
      - {{ . | quote }}
      {{- end }}
    {{- end }}
    {{- if eq .component.type "webapp" }}
    ports:
      - name: main
        containerPort: {{ .settings.port }}
        protocol: {{ if eq .settings.protocol "udp" }}UDP{{ else }}TCP{{ end }}
    {{- end }}
    env:
      {{- range $k, $v := .env }}
      - name: {{ $k | quote }}
        value: {{ $v | quote }}
      {{- end }}
      {{- range .settings.envs }}
      - name: {{ .key | quote }}
        value: {{ .value | quote }}
      {{- end }}
    {{- if or .settings.cpu .settings.memory }}
    resources:
      limits:
        {{- if .settings.cpu }}
        cpu: {{ .settings.cpu | quote }}
        {{- end }}
        {{- if .settings.memory }}
        memory: {{ printf "%vMi" .settings.memory | quote }}
        {{- end }}
    {{- end }}
    {{- with .settings.healthcheck }}
    readinessProbe:
      {{- if eq .protocol "tcp" }}
      tcpSocket:
        port: {{ .port | default $.settings.port }}
      {{- else }}
      httpGet:
        path: {{ .path | default "/" | quote }}
        port: {{ .port | default $.settings.port }}
      {{- end }}
      {{- if .interval }}
      periodSeconds: {{ .interval }}
      {{- end }}
      {{- if .timeout }}
      timeoutSeconds: {{ .timeout }}
      {{- end }}
      {{- if .failureThreshold }}
      failureThreshold: {{ .failureThreshold }}
      {{- end }}
    {{- end }}
`

const podLabels = `labels:
  shipyard.io/instance: {{ .instance.uuid | quote }}
  shipyard.io/component: {{ .component.uuid | quote }}
`

const webappDeployment = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: {{ .component.name }}
  labels:
    app.kubernetes.io/name: {{ .component.name }}
spec:
  {{- if not .settings.autoscaling }}
  replicas: 1
  {{- end }}
  selector:
    matchLabels:
      shipyard.io/component: {{ .component.uuid | quote }}
  template:
    metadata:
@@POD_LABELS6@@
    spec:
@@CONTAINERS6@@
`

const webappService = `apiVersion: v1
kind: Service
metadata:
  name: {{ .component.name }}
spec:
  selector:
    shipyard.io/component: {{ .component.uuid | quote }}
  ports:
    - name: main
      port: {{ .settings.port }}
      targetPort: {{ .settings.port }}
      protocol: {{ if eq .settings.protocol "udp" }}UDP{{ else }}TCP{{ end }}
`

const webappRoute = `{{- if .exposure.routed }}
apiVersion: gateway.networking.k8s.io/{{ if or (eq .exposure.routeKind "HTTPRoute") (eq .exposure.routeKind "GRPCRoute") }}v1{{ else }}v1alpha2{{ end }}
kind: {{ .exposure.routeKind }}
metadata:
  name: {{ .component.name }}
spec:
  parentRefs:
    - namespace: {{ .gateway.namespace }}
      name: {{ .gateway.name }}
  {{- if and .settings.url (eq .exposure.routeKind "HTTPRoute") }}
  hostnames:
    - {{ .settings.url | trimPrefix "https://" | trimPrefix "http://" | splitList "/" | first | quote }}
  {{- end }}
  rules:
    - backendRefs:
        - name: {{ .component.name }}
          port: {{ .settings.port }}
{{- end }}
`

const webappAutoscaler = `{{- with .settings.autoscaling }}
apiVersion: autoscaling/v2
kind: HorizontalPodAutoscaler
metadata:
  name: {{ $.component.name }}
spec:
  scaleTargetRef:
    apiVersion: apps/v1
    kind: Deployment
    name: {{ $.component.name }}
  minReplicas: {{ .min }}
  maxReplicas: {{ .max }}
  metrics:
    - type: Resource
      resource:
        name: cpu
        target:
          type: Utilization
          averageUtilization: 80
{{- end }}
`

const workerDeployment = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: {{ .component.name }}
  labels:
    app.kubernetes.io/name: {{ .component.name }}
spec:
  replicas: {{ if kindIs "invalid" .settings.replicas }}1{{ else }}{{ .settings.replicas }}{{ end }}
  selector:
    matchLabels:
      shipyard.io/component: {{ .component.uuid | quote }}
  template:
    metadata:
@@POD_LABELS6@@
    spec:
@@CONTAINERS6@@
`

const cronJob = `apiVersion: batch/v1
kind: CronJob
metadata:
  name: {{ .component.name }}
spec:
  schedule: {{ .settings.schedule | quote }}
  suspend: {{ .settings.suspend }}
  concurrencyPolicy: Forbid
  jobTemplate:
    spec:
      template:
        metadata:
@@POD_LABELS10@@
        spec:
          restartPolicy: OnFailure
@@CONTAINERS10@@
`

// BuiltinTemplates returns the templates shipped with the binary, one set
// per component type.
func BuiltinTemplates() []api.TemplateDocument {
	doc := func(name string, t api.ComponentType, order int, content string) api.TemplateDocument {
		return api.TemplateDocument{
			Name:          name,
			Version:       BuiltinVersion,
			ComponentType: t,
			RenderOrder:   order,
			Engine:        api.TemplateEngineGo,
			Content:       expandPartials(content),
		}
	}
	return []api.TemplateDocument{
		doc("webapp-deployment", api.ComponentTypeWebapp, 0, webappDeployment),
		doc("webapp-service", api.ComponentTypeWebapp, 1, webappService),
		doc("webapp-route", api.ComponentTypeWebapp, 2, webappRoute),
		doc("webapp-autoscaler", api.ComponentTypeWebapp, 3, webappAutoscaler),
		doc("worker-deployment", api.ComponentTypeWorker, 0, workerDeployment),
		doc("cron-cronjob", api.ComponentTypeCron, 0, cronJob),
	}
}

func expandPartials(content string) string {
	return strings.NewReplacer(
		"@@POD_LABELS6@@", indentBlock(podLabels, 6),
		"@@POD_LABELS10@@", indentBlock(podLabels, 10),
		"@@CONTAINERS6@@", indentBlock(containerBlock, 6),
		"@@CONTAINERS10@@", indentBlock(containerBlock, 10),
	).Replace(content)
}

// indentBlock prefixes every non-empty line and drops the trailing newline.
func indentBlock(block string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(strings.TrimRight(block, "\n"), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

// Package template resolves Components into Kubernetes resource documents.
//
// A component type owns an ordered set of versioned templates. For each
// enabled template the Resolver builds a variable context from the Instance,
// the Environment settings, the Component settings and the exposure decided
// by the capability detector, checks that every referenced variable is
// present or defaulted, renders the template through a pluggable Renderer
// (Go text/template with sprig, or plain placeholders) and decodes the
// resulting YAML stream. Ownership labels and annotations plus a content
// digest are injected into every document afterwards, so template authors
// never have to.
//
// Rendering is pure: the same Input always produces the same documents and
// digests, and a failure never returns partial output.
package template

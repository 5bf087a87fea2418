// Package validator checks project data before it is served: JSON schema conformance of
// every document, broken links and unreachable nodes in programs, and references between
// versions, programs and the language model.
package validator

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/parley/internal/nlc"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Severity grades an issue. Only errors fail validation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding.
type Issue struct {
	Severity  Severity
	File      string
	ProgramID string
	NodeID    string
	Message   string
}

func (i Issue) String() string {
	var where []string
	if i.File != "" {
		where = append(where, i.File)
	}
	if i.ProgramID != "" {
		where = append(where, "program "+i.ProgramID)
	}
	if i.NodeID != "" {
		where = append(where, "node "+i.NodeID)
	}
	if len(where) == 0 {
		return fmt.Sprintf("%s: %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Severity, strings.Join(where, ", "), i.Message)
}

// Report collects the issues of a validation run.
type Report struct {
	Issues []Issue
}

func (r *Report) add(issues ...Issue) {
	r.Issues = append(r.Issues, issues...)
}

// Errors returns the issues of error severity.
func (r *Report) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// Err summarizes the errors, or returns nil when there are none.
func (r *Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.String()
	}
	return fmt.Errorf("found %d errors:\n- %s", len(errs), strings.Join(lines, "\n- "))
}

// Kind selects the schema of a document.
type Kind string

const (
	KindProgram Kind = "program"
	KindVersion Kind = "version"
)

var schemas = map[Kind]*gojsonschema.Schema{}

func init() {
	for _, kind := range []Kind{KindProgram, KindVersion} {
		raw, err := schemaFS.ReadFile("schemas/" + string(kind) + ".schema.json")
		if err != nil {
			panic(err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("invalid %s schema: %v", kind, err))
		}
		schemas[kind] = schema
	}
}

// ValidateDocument checks a JSON document against the schema of kind.
func ValidateDocument(kind Kind, data []byte) ([]Issue, error) {
	schema, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	var issues []Issue
	for _, desc := range result.Errors() {
		issues = append(issues, Issue{Severity: SeverityError, Message: desc.String()})
	}
	return issues, nil
}

// ValidateProgram crawls p from its start node and from its jump commands, reporting broken
// links, unreachable nodes, nodes missing their type data and references to programs for
// which known returns false. A nil known skips program references.
func ValidateProgram(p *domain.Program, known func(programID string) bool) []Issue {
	var issues []Issue
	report := func(sev Severity, nodeID, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, ProgramID: p.ID, NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
	}

	if _, ok := p.GetNode(p.StartID); !ok {
		report(SeverityError, "", "start node %q not found", p.StartID)
	}

	roots := []string{p.StartID}
	for _, cmd := range p.Commands {
		switch cmd.Type {
		case domain.CommandJump:
			if cmd.Next != "" {
				roots = append(roots, cmd.Next)
			}
		case domain.CommandPush:
			if known != nil && !known(cmd.ProgramID) {
				report(SeverityError, "", "command pushes unknown program %q", cmd.ProgramID)
			}
		}
	}

	visited := make(map[string]bool)
	queue := roots
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == "" || visited[id] {
			continue
		}
		visited[id] = true

		node, ok := p.GetNode(id)
		if !ok {
			continue
		}
		for _, next := range Successors(node) {
			if _, ok := p.GetNode(next); !ok {
				report(SeverityError, id, "references missing node %q", next)
				continue
			}
			if !visited[next] {
				queue = append(queue, next)
			}
		}
	}

	ids := make([]string, 0, len(p.Nodes))
	for id := range p.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		node := p.Nodes[id]
		if msg := missingData(node); msg != "" {
			report(SeverityError, id, "%s", msg)
		}
		if node.Type == domain.NodeFlow && node.Flow != nil && known != nil && !known(node.Flow.ProgramID) {
			report(SeverityError, id, "enters unknown program %q", node.Flow.ProgramID)
		}
		if !visited[id] {
			report(SeverityWarning, id, "unreachable node")
		}
	}
	return issues
}

// Successors lists the node ids a node can transition to.
func Successors(n *domain.Node) []string {
	var out []string
	add := func(ids ...string) {
		for _, id := range ids {
			if id != "" {
				out = append(out, id)
			}
		}
	}
	add(n.Next)
	for _, in := range n.Interactions {
		add(in.NextID)
	}
	if n.If != nil {
		for _, b := range n.If.Branches {
			add(b.NextID)
		}
	}
	if n.API != nil {
		add(n.API.SuccessID, n.API.FailID)
	}
	if n.NoMatch != nil {
		add(n.NoMatch.NodeID)
	}
	return out
}

func missingData(n *domain.Node) string {
	switch n.Type {
	case domain.NodeSpeak:
		if n.Speak == nil || len(n.Speak.Messages) == 0 {
			return "speak node has no messages"
		}
	case domain.NodeInteraction:
		if !n.HasInteractions() {
			return "interaction node has no interactions"
		}
	case domain.NodeIntent:
		if _, ok := n.BoundIntent(); !ok {
			return "intent node has no intent"
		}
	case domain.NodeCapture:
		if n.Capture == nil || n.Capture.Variable == "" {
			return "capture node has no variable"
		}
	case domain.NodeIf:
		if n.If == nil {
			return "if node has no branches"
		}
	case domain.NodeAPI:
		if n.API == nil {
			return "api node has no configuration"
		}
	case domain.NodeFlow:
		if n.Flow == nil || n.Flow.ProgramID == "" {
			return "flow node has no program"
		}
	}
	return ""
}

// ValidateVersion checks the root program reference and the language model of v.
func ValidateVersion(v *domain.Version, known func(programID string) bool) []Issue {
	var issues []Issue
	report := func(sev Severity, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Message: fmt.Sprintf("version %s: ", v.ID) + fmt.Sprintf(format, args...)})
	}

	if known != nil && !known(v.RootProgramID) {
		report(SeverityError, "root program %q not found", v.RootProgramID)
	}

	model := &v.Prototype.Model
	slotNames := make(map[string]bool)
	for _, s := range model.Slots {
		if slotNames[s.Name] {
			report(SeverityError, "duplicate slot name %q", s.Name)
		}
		slotNames[s.Name] = true
		if s.IsCustom() && len(s.Inputs) == 0 {
			report(SeverityWarning, "custom slot %q has no values", s.Name)
		}
	}

	intentNames := make(map[string]bool)
	for _, in := range model.Intents {
		if intentNames[in.Name] {
			report(SeverityError, "duplicate intent %q", in.Name)
		}
		intentNames[in.Name] = true
		if len(in.Inputs) == 0 {
			report(SeverityWarning, "intent %q has no utterances", in.Name)
		}
		for _, slot := range in.Slots {
			if _, ok := model.SlotByKey(slot.ID); !ok {
				report(SeverityError, "intent %q uses unknown slot %q", in.Name, slot.ID)
			}
		}
		for _, input := range in.Inputs {
			for _, ref := range domain.SlotRef.FindAllStringSubmatch(input.Text, -1) {
				if _, ok := model.SlotByKey(ref[2]); !ok {
					report(SeverityWarning, "utterance %q of intent %q references unknown slot %q", input.Text, in.Name, ref[2])
				}
			}
		}
	}
	return issues
}

// ValidateProject validates every document of a project directory. Read failures are
// returned as errors, findings go to the report.
func ValidateProject(api *file.DataAPI) (*Report, error) {
	report := &Report{}

	programDocs, err := api.ReadDocuments(file.ProgramsDir)
	if err != nil {
		return nil, err
	}
	versionDocs, err := api.ReadDocuments(file.VersionsDir)
	if err != nil {
		return nil, err
	}

	programs := make(map[string]*domain.Program)
	for _, doc := range programDocs {
		var p domain.Program
		if !decodeDocument(report, KindProgram, doc, &p) {
			continue
		}
		if p.ID == "" {
			p.ID = doc.ID
		}
		programs[p.ID] = &p
	}
	known := func(id string) bool { return programs[id] != nil }

	intents := make(map[string]bool)
	for _, doc := range versionDocs {
		var v domain.Version
		if !decodeDocument(report, KindVersion, doc, &v) {
			continue
		}
		if v.ID == "" {
			v.ID = doc.ID
		}
		for _, issue := range ValidateVersion(&v, known) {
			issue.File = doc.Path
			report.add(issue)
		}
		for _, in := range v.Prototype.Model.Intents {
			intents[in.Name] = true
		}
		builtins, err := nlc.BuiltinIntents(v.Prototype.Locale())
		if err != nil {
			return nil, err
		}
		for _, b := range builtins {
			intents[b.Name] = true
		}
	}

	ids := make([]string, 0, len(programs))
	for id := range programs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := programs[id]
		report.add(ValidateProgram(p, known)...)
		if len(versionDocs) > 0 {
			report.add(undeclaredIntents(p, intents)...)
		}
	}
	return report, nil
}

func decodeDocument(report *Report, kind Kind, doc file.Document, out any) bool {
	raw, err := file.ToJSON(doc.Data, doc.Ext)
	if err != nil {
		report.add(Issue{Severity: SeverityError, File: doc.Path, Message: "invalid document: " + err.Error()})
		return false
	}
	issues, err := ValidateDocument(kind, raw)
	if err != nil {
		report.add(Issue{Severity: SeverityError, File: doc.Path, Message: err.Error()})
		return false
	}
	for _, issue := range issues {
		issue.File = doc.Path
		report.add(issue)
	}
	if len(issues) > 0 {
		return false
	}
	if err := file.Decode(doc.Data, doc.Ext, out); err != nil {
		report.add(Issue{Severity: SeverityError, File: doc.Path, Message: "invalid " + string(kind) + ": " + err.Error()})
		return false
	}
	return true
}

func undeclaredIntents(p *domain.Program, declared map[string]bool) []Issue {
	var issues []Issue
	check := func(nodeID string, ev domain.Event) {
		if ev.Type == domain.RequestIntent && ev.Intent != "" && !declared[ev.Intent] {
			issues = append(issues, Issue{
				Severity:  SeverityWarning,
				ProgramID: p.ID,
				NodeID:    nodeID,
				Message:   fmt.Sprintf("intent %q is not declared by any version", ev.Intent),
			})
		}
	}
	for _, cmd := range p.Commands {
		check("", cmd.Event)
	}
	ids := make([]string, 0, len(p.Nodes))
	for id := range p.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n := p.Nodes[id]
		for _, in := range n.Interactions {
			check(id, in.Event)
		}
		if name, ok := n.BoundIntent(); ok {
			check(id, domain.Event{Type: domain.RequestIntent, Intent: name})
		}
	}
	return issues
}

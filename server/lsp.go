package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/luma/compiler"
	"github.com/chazu/luma/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "luma-lsp"

var log = commonlog.GetLogger("luma.lsp")

// document is an open editor buffer and the result of its last compile.
type document struct {
	text  string
	proto *vm.Prototype // last successful compile, nil if none yet
}

// LspServer publishes compile diagnostics for open documents and answers
// completion and hover requests from them.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]*document // URI → document

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP(version string) *LspServer {
	s := &LspServer{
		docs:    make(map[string]*document),
		version: version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.mu.Lock()
	s.docs = make(map[string]*document)
	s.mu.Unlock()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	diagnostics := s.update(uri, params.TextDocument.Text)
	s.publish(ctx, uri, diagnostics)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			diagnostics := s.update(uri, whole.Text)
			s.publish(ctx, uri, diagnostics)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	s.publish(ctx, uri, []protocol.Diagnostic{})
	return nil
}

// update stores text as the content of uri, compiles it and returns its
// diagnostics. The previous prototype is kept when the new text fails.
func (s *LspServer) update(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[string(uri)]
	if !ok {
		doc = &document{}
		s.docs[string(uri)] = doc
	}
	doc.text = text

	proto, diagnostics := diagnose(chunkName(uri), text)
	if proto != nil {
		doc.proto = proto
	}
	log.Debugf("%s: %d diagnostics", uri, len(diagnostics))
	return diagnostics
}

func (s *LspServer) publish(ctx *glsp.Context, uri protocol.DocumentUri, diagnostics []protocol.Diagnostic) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func (s *LspServer) lookup(uri protocol.DocumentUri) (string, *vm.Prototype, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[string(uri)]
	if !ok {
		return "", nil, false
	}
	return doc.text, doc.proto, true
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, _, ok := s.lookup(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(text, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, proto, ok := s.lookup(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(proto, word), nil
}

// --- Compilation-backed logic ---

// diagnose compiles text and converts a failure into diagnostics. An
// internal compiler error is reported on the first line rather than
// taking the server down.
func diagnose(name, text string) (proto *vm.Prototype, diagnostics []protocol.Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*compiler.InternalError)
			if !ok {
				panic(r)
			}
			log.Errorf("%s: %s", name, ie.Msg)
			proto = nil
			diagnostics = []protocol.Diagnostic{newDiagnostic(text, 1, ie.Error())}
		}
	}()

	proto, err := compiler.Compile(text, name, compiler.Options{})
	if err == nil {
		return proto, []protocol.Diagnostic{}
	}

	var ce *compiler.Error
	if !errors.As(err, &ce) {
		return nil, []protocol.Diagnostic{newDiagnostic(text, 1, err.Error())}
	}
	msg := ce.Msg
	if ce.Near != "" {
		msg += " near " + ce.Near
	}
	return nil, []protocol.Diagnostic{newDiagnostic(text, ce.Line, msg)}
}

// newDiagnostic returns an error diagnostic spanning the 1-based line.
func newDiagnostic(text string, line int, msg string) protocol.Diagnostic {
	lines := strings.Split(text, "\n")
	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}
	end := len(strings.TrimRight(lines[line-1], "\r"))

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(line - 1), Character: 0},
			End:   protocol.Position{Line: protocol.UInteger(line - 1), Character: protocol.UInteger(end)},
		},
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}
}

// complete offers reserved words and the names used in text that start
// with prefix.
func complete(text, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem

	for _, word := range compiler.ReservedWords() {
		if strings.HasPrefix(word, prefix) {
			items = append(items, completionItem(word, protocol.CompletionItemKindKeyword, "keyword"))
		}
	}

	seen := make(map[string]bool)
	l := compiler.NewLexer(text)
	for {
		tok := l.NextToken()
		if tok.Type == compiler.TokenEOF || tok.Type == compiler.TokenError {
			break
		}
		if tok.Type != compiler.TokenName || tok.Literal == prefix || seen[tok.Literal] {
			continue
		}
		if strings.HasPrefix(tok.Literal, prefix) {
			seen[tok.Literal] = true
			items = append(items, completionItem(tok.Literal, protocol.CompletionItemKindVariable, "name"))
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func completionItem(label string, kind protocol.CompletionItemKind, detail string) protocol.CompletionItem {
	return protocol.CompletionItem{
		Label:      label,
		Kind:       &kind,
		Detail:     &detail,
		InsertText: &label,
	}
}

// hover describes word: a reserved word, or a local or global variable of
// the compiled document.
func hover(proto *vm.Prototype, word string) *protocol.Hover {
	var b strings.Builder

	switch {
	case compiler.IsReserved(word):
		fmt.Fprintf(&b, "**%s** (keyword)", word)
	case proto != nil:
		scopes := localScopes(proto, word)
		if len(scopes) > 0 {
			fmt.Fprintf(&b, "**%s**: local in %s", word, strings.Join(scopes, ", "))
		} else if globalNames(proto)[word] {
			fmt.Fprintf(&b, "**%s**: global", word)
		}
	}

	if b.Len() == 0 {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// localScopes names the functions declaring a local called name.
func localScopes(proto *vm.Prototype, name string) []string {
	var scopes []string
	proto.Walk(func(p *vm.Prototype) {
		for _, lv := range p.LocVars {
			if lv.Name != name {
				continue
			}
			if p.LineDefined == 0 {
				scopes = append(scopes, "main chunk")
			} else {
				scopes = append(scopes, fmt.Sprintf("function at line %d", p.LineDefined))
			}
			return
		}
	})
	return scopes
}

// globalNames collects the names read or written through _ENV.
func globalNames(proto *vm.Prototype) map[string]bool {
	names := make(map[string]bool)
	proto.Walk(func(p *vm.Prototype) {
		for _, i := range p.Code {
			var up, key int
			switch i.Opcode() {
			case vm.OpGetTabUp:
				up, key = i.B(), i.C()
			case vm.OpSetTabUp:
				up, key = i.A(), i.B()
			default:
				continue
			}
			if up >= len(p.Upvalues) || p.Upvalues[up].Name != "_ENV" || !vm.IsConstant(key) {
				continue
			}
			if k := p.Constants[vm.ConstantIndex(key)]; k.Kind == vm.KindString {
				names[k.S] = true
			}
		}
	})
	return names
}

// chunkName names a document in compile messages.
func chunkName(uri protocol.DocumentUri) string {
	name := string(uri)
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return "@" + name
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isNameChar(line[start-1]) {
		start--
	}
	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isNameChar(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isNameChar(line[end]) {
		end++
	}

	if start == end {
		return ""
	}
	return line[start:end]
}

func isNameChar(ch byte) bool {
	return ch == '_' || ch < 0x80 && (unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch)))
}

func boolPtr(b bool) *bool {
	return &b
}

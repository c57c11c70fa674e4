// Package mcpserver exposes the conversation session as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kalambet/ragdesk/internal/notify"
	"github.com/kalambet/ragdesk/internal/session"
	"github.com/kalambet/ragdesk/internal/transport"
)

const (
	Name    = "ragdesk"
	Version = "1.0.0"

	TranscriptURI = "session://transcript"
	NoticesURI    = "session://notices"

	maxTopK = 20
)

// Prober reports whether the backend answers at all. transport.Client
// satisfies it.
type Prober interface {
	CheckConnection(ctx context.Context) transport.ConnectionResult
}

// Deps holds dependencies for the MCP server.
type Deps struct {
	Store  *session.Store
	Prober  Prober         // optional; system_status skips the probe when nil
	Notices *notify.Center // optional; the notice tools report nothing when nil
	Logger  *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// New creates an MCP server with the session tools and resources registered.
func New(deps Deps) *server.MCPServer {
	deps = deps.withDefaults()

	s := server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("ragdesk: ask questions against the documents ingested into the RAG backend."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question answered from the ingested documents. The exchange is appended to the session transcript."),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Number of chunks to retrieve (default 5, max 20)")),
			mcp.WithBoolean("use_rerank", mcp.Description("Rerank retrieved chunks before answering")),
		),
		handleAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List the documents currently ingested into the backend."),
		),
		handleListDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_document",
			mcp.WithDescription("Delete one ingested document by ID."),
			mcp.WithString("id", mcp.Description("Document ID as reported by list_documents"), mcp.Required()),
		),
		handleDeleteDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("system_status",
			mcp.WithDescription("Report backend status, document and chunk counts."),
			mcp.WithBoolean("probe", mcp.Description("Also probe the health endpoint with a short timeout")),
		),
		handleSystemStatus(deps),
	)

	s.AddResource(
		mcp.NewResource(
			TranscriptURI,
			"Session Transcript",
			mcp.WithResourceDescription("The current conversation log as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		handleTranscript(deps),
	)

	s.AddResource(
		mcp.NewResource(
			NoticesURI,
			"Active Notices",
			mcp.WithResourceDescription("Notices raised by failed backend exchanges that are still visible"),
			mcp.WithMIMEType("application/json"),
		),
		handleNotices(deps),
	)

	s.AddTool(
		mcp.NewTool("dismiss_notice",
			mcp.WithDescription("Dismiss one visible notice by ID, or all of them when no ID is given."),
			mcp.WithNumber("id", mcp.Description("Notice ID as listed in "+NoticesURI)),
		),
		handleDismissNotice(deps),
	)

	return s
}

// Serve speaks the stdio transport over in and out until ctx is done or the
// client disconnects.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	err := server.NewStdioServer(s).Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func handleAsk(deps Deps) server.ToolHandlerFunc {
	deps = deps.withDefaults()
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		topK := req.GetInt("top_k", session.DefaultTopK)
		if topK <= 0 {
			topK = session.DefaultTopK
		}
		if topK > maxTopK {
			topK = maxTopK
		}

		resp, err := deps.Store.SendMessage(ctx, question, session.QueryOptions{
			TopK:      topK,
			UseRerank: req.GetBool("use_rerank", false),
		})
		if err != nil {
			deps.Logger.Warn("mcp ask failed", zap.Error(err))
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		return mcpJSON(resp)
	}
}

func handleListDocuments(deps Deps) server.ToolHandlerFunc {
	deps = deps.withDefaults()
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		catalog, err := deps.Store.LoadDocuments(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing documents failed: %v", err)), nil
		}
		return mcpJSON(catalog.Documents)
	}
}

func handleDeleteDocument(deps Deps) server.ToolHandlerFunc {
	deps = deps.withDefaults()
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		if err := deps.Store.DeleteDocument(ctx, id); err != nil {
			if transport.IsKind(err, transport.KindNotFound) {
				return mcpError(fmt.Sprintf("document %s does not exist", id)), nil
			}
			return mcpError(fmt.Sprintf("deleting document failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Deleted document %s", id)), nil
	}
}

type statusResult struct {
	session.SystemStatus
	Connection *transport.ConnectionResult `json:"connection,omitempty"`
}

func handleSystemStatus(deps Deps) server.ToolHandlerFunc {
	deps = deps.withDefaults()
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var res statusResult
		if req.GetBool("probe", false) && deps.Prober != nil {
			conn := deps.Prober.CheckConnection(ctx)
			res.Connection = &conn
		}

		st, err := deps.Store.LoadSystemStatus(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("loading status failed: %v", err)), nil
		}
		res.SystemStatus = st

		return mcpJSON(res)
	}
}

func handleTranscript(deps Deps) server.ResourceHandlerFunc {
	deps = deps.withDefaults()
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Store.Messages())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal transcript: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func activeNotices(deps Deps) []notify.Notice {
	if deps.Notices == nil {
		return []notify.Notice{}
	}
	return deps.Notices.Active()
}

func handleNotices(deps Deps) server.ResourceHandlerFunc {
	deps = deps.withDefaults()
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(activeNotices(deps))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notices: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func handleDismissNotice(deps Deps) server.ToolHandlerFunc {
	deps = deps.withDefaults()
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Notices == nil {
			return mcpText("No notices."), nil
		}

		id := req.GetInt("id", 0)
		if id <= 0 {
			n := len(deps.Notices.Active())
			deps.Notices.DismissAll()
			return mcpText(fmt.Sprintf("Dismissed %d notices", n)), nil
		}
		if !deps.Notices.Dismiss(uint64(id)) {
			deps.Logger.Debug("dismissing unknown notice", zap.Int("id", id))
			return mcpError(fmt.Sprintf("notice %d is not visible", id)), nil
		}
		return mcpText(fmt.Sprintf("Dismissed notice %d", id)), nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

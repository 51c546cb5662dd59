package rest

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/hrayleung/Jin-sub003/config"
	"github.com/hrayleung/Jin-sub003/genengine"
	"github.com/hrayleung/Jin-sub003/genengine/domain"
	pkgError "github.com/hrayleung/Jin-sub003/pkg/error"
	"github.com/hrayleung/Jin-sub003/pkg/utils"
	"github.com/hrayleung/Jin-sub003/validations"
)

// TranscriptReader is the read side of transcript persistence the API needs.
type TranscriptReader interface {
	ListByConversation(ctx context.Context, conversationID string) ([]*domain.Transcript, error)
}

type Generation struct {
	Engine      *genengine.Engine
	Transcripts TranscriptReader
}

func InitRestGeneration(app fiber.Router, engine *genengine.Engine, transcripts TranscriptReader) Generation {
	rest := Generation{Engine: engine, Transcripts: transcripts}
	app.Post("/conversations/:id/generate", rest.Generate)
	app.Post("/conversations/:id/cancel", rest.Cancel)
	app.Get("/conversations/:id/session", rest.SessionSnapshot)
	app.Get("/conversations/:id/transcripts", rest.ListTranscripts)
	app.Get("/sessions", rest.ActiveSessions)

	return rest
}

type generateMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type generateRequest struct {
	Provider string                  `json:"provider"`
	Model    string                  `json:"model"`
	Messages []generateMessage       `json:"messages"`
	Tools    []domain.ToolDefinition `json:"tools,omitempty"`
	Cache    struct {
		Mode               string `json:"mode,omitempty"`
		CachedResourceName string `json:"cached_resource_name,omitempty"`
	} `json:"cache"`
}

// defaultCacheMode is the request default when the body leaves the mode
// unset; deployments override it with ENGINE_CACHE_MODE.
func defaultCacheMode() domain.CacheMode {
	if config.Global != nil && config.Global.Engine.CacheMode != "" {
		return domain.CacheMode(config.Global.Engine.CacheMode)
	}
	return domain.CacheModeAutomatic
}

func (body generateRequest) toDomain() *domain.GenerationRequest {
	req := &domain.GenerationRequest{
		Provider: domain.Provider(body.Provider),
		Model:    body.Model,
		Tools:    body.Tools,
		CacheOptions: domain.ContextCacheOptions{
			Mode:               defaultCacheMode(),
			CachedResourceName: body.Cache.CachedResourceName,
		},
	}
	if body.Cache.Mode != "" {
		req.CacheOptions.Mode = domain.CacheMode(body.Cache.Mode)
	}
	for _, m := range body.Messages {
		req.Messages = append(req.Messages, domain.Message{
			Role:  m.Role,
			Parts: []domain.ContentPart{{Kind: domain.PartText, Text: m.Text}},
		})
	}
	return req
}

func (handler *Generation) Generate(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	var body generateRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: err.Error(),
		})
	}

	req := body.toDomain()
	utils.PanicIfNeeded(validations.ValidateGenerationRequest(c.UserContext(), req))

	sess, err := handler.Engine.Generate(c.UserContext(), conversationID, req)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Generation started",
		Results: fiber.Map{
			"conversation_id": sess.ConversationID,
			"model":           sess.ModelLabel,
			"started_at":      sess.StartedAt,
		},
	})
}

func (handler *Generation) Cancel(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	handler.Engine.Cancel(conversationID)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cancellation requested",
	})
}

// sessionSnapshot is the polled view of an in-flight generation.
type sessionSnapshot struct {
	ConversationID   string                  `json:"conversation_id"`
	Streaming        bool                    `json:"streaming"`
	Model            string                  `json:"model,omitempty"`
	Parts            []domain.ContentPart    `json:"parts,omitempty"`
	ToolCalls        []domain.ToolCall       `json:"tool_calls,omitempty"`
	SearchActivities []domain.SearchActivity `json:"search_activities,omitempty"`
}

func (handler *Generation) SessionSnapshot(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	sessions := handler.Engine.Sessions()

	snapshot := sessionSnapshot{ConversationID: conversationID}
	if acc := sessions.Current(conversationID); acc != nil {
		snapshot.Streaming = true
		snapshot.Model = sessions.ModelLabel(conversationID)
		snapshot.Parts = acc.BuildContentParts()
		snapshot.ToolCalls = acc.BuildToolCalls()
		snapshot.SearchActivities = acc.BuildSearchActivities()
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session snapshot retrieved",
		Results: snapshot,
	})
}

func (handler *Generation) ListTranscripts(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	transcripts, err := handler.Transcripts.ListByConversation(c.UserContext(), conversationID)
	utils.PanicIfNeeded(err)

	// A conversation that never streamed here has nothing to list; a live one
	// legitimately has no transcripts yet.
	if len(transcripts) == 0 && !handler.Engine.Sessions().IsStreaming(conversationID) {
		panic(pkgError.NotFoundError("conversation " + conversationID + " has no transcripts"))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Transcripts retrieved",
		Results: transcripts,
	})
}

func (handler *Generation) ActiveSessions(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Active sessions retrieved",
		Results: handler.Engine.Sessions().Active(),
	})
}

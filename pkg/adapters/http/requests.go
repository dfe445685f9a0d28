package http

import (
	"github.com/aretw0/redline/pkg/domain"
	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps request bodies. Document bodies are the largest payloads.
const MaxBodyBytes = 4 << 20

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("action", func(fl validator.FieldLevel) bool {
		return domain.Action(fl.Field().String()).Valid()
	})
}

// StartWorkflowRequest is the body of POST /workflows.
type StartWorkflowRequest struct {
	GraphID    string `json:"graph_id" validate:"required"`
	DocumentID string `json:"document_id" validate:"required"`
}

// AdvanceWorkflowRequest is the body of POST /workflows/{instanceID}/advance.
type AdvanceWorkflowRequest struct {
	Action        string `json:"action" validate:"required,action"`
	StageID       string `json:"stage_id,omitempty"`
	Comment       string `json:"comment,omitempty"`
	Justification string `json:"justification,omitempty"`
}

// ResetWorkflowRequest is the body of POST /workflows/{instanceID}/reset.
type ResetWorkflowRequest struct {
	Comment       string `json:"comment,omitempty"`
	Justification string `json:"justification,omitempty"`
}

// CreateDocumentRequest is the body of POST /documents.
type CreateDocumentRequest struct {
	DocumentID string `json:"document_id" validate:"required"`
	Body       string `json:"body" validate:"required"`
}

// AnchorBody locates an edit.
type AnchorBody struct {
	Page      int    `json:"page,omitempty" validate:"gte=0"`
	Paragraph string `json:"paragraph,omitempty"`
	Line      int    `json:"line,omitempty" validate:"gte=0"`
	Text      string `json:"text" validate:"required"`
}

// FeedbackRequest is the body of the submit and propose endpoints.
type FeedbackRequest struct {
	ID          string     `json:"id,omitempty"`
	Anchor      AnchorBody `json:"anchor"`
	Replacement string     `json:"replacement"`
	Severity    string     `json:"severity,omitempty" validate:"omitempty,oneof=critical substantive administrative"`
	BaseVersion int        `json:"base_version,omitempty" validate:"gte=0"`
}

func (f FeedbackRequest) toDomain(documentID string, actor domain.Actor) *domain.FeedbackItem {
	return &domain.FeedbackItem{
		ID:         f.ID,
		DocumentID: documentID,
		Anchor: domain.Anchor{
			Page:      f.Anchor.Page,
			Paragraph: f.Anchor.Paragraph,
			Line:      f.Anchor.Line,
			Text:      f.Anchor.Text,
		},
		Replacement: f.Replacement,
		Severity:    domain.Severity(f.Severity),
		AuthorRef:   actor.ID,
		BaseVersion: f.BaseVersion,
	}
}

// ResolveConflictRequest is the body of POST /conflicts/{conflictID}/resolve.
type ResolveConflictRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=accept_a accept_b accept_merged reject_both"`
	Text       string `json:"text,omitempty" validate:"required_if=Resolution accept_merged"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

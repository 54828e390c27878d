package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bandhan-ai/ralph/crm"
)

type createCampaignArgs struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

// NewCreateCampaign returns the create_campaign tool. It is one of the
// two protected marketing actions.
func NewCreateCampaign(store *crm.Store) Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "Campaign name.",
			},
			"type": map[string]any{
				"type":        "string",
				"description": "Campaign type, e.g. loyalty, referral, lost.",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Optional campaign description.",
			},
			"status": map[string]any{
				"type":        "string",
				"description": "Initial campaign status, defaults to draft.",
			},
		},
		"required": []string{"name", "type"},
	}

	return NewFuncTool(
		"create_campaign",
		"Create a marketing campaign.",
		schema,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in createCampaignArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid create_campaign args: %w", err)
			}
			if !contains(crm.CampaignTypes, in.Type) {
				return nil, fmt.Errorf("invalid campaign type: %s. Must be one of %v", in.Type, crm.CampaignTypes)
			}
			if in.Status == "" {
				in.Status = "draft"
			}
			id, err := store.CreateCampaign(ctx, in.Name, in.Type, in.Description, in.Status)
			if err != nil {
				return nil, err
			}
			return id, nil
		},
	)
}

type sendCampaignEmailArgs struct {
	CampaignID string `json:"campaign_id"`
	CustomerID int64  `json:"customer_id"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Status     string `json:"status,omitempty"`
	Opened     bool   `json:"opened,omitempty"`
}

// NewSendCampaignEmail returns the send_campaign_email tool. It is one of
// the two protected marketing actions.
func NewSendCampaignEmail(store *crm.Store) Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"campaign_id": map[string]any{
				"type":        "string",
				"description": "Id of the campaign this email belongs to.",
			},
			"customer_id": map[string]any{
				"type":        "integer",
				"description": "Id of the recipient customer.",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Email subject line.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "HTML email body.",
			},
			"status": map[string]any{
				"type":        "string",
				"description": "Delivery status, defaults to sent.",
			},
			"opened": map[string]any{
				"type":        "boolean",
				"description": "Whether the email has been opened.",
			},
		},
		"required": []string{"campaign_id", "customer_id", "subject", "body"},
	}

	return NewFuncTool(
		"send_campaign_email",
		"Send a personalized campaign email to a customer.",
		schema,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in sendCampaignEmailArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid send_campaign_email args: %w", err)
			}
			if in.Status == "" {
				in.Status = "sent"
			}
			if !contains(crm.EmailStatuses, in.Status) {
				return nil, fmt.Errorf("invalid email status: %s. Must be one of %v", in.Status, crm.EmailStatuses)
			}

			email, err := store.CustomerEmail(ctx, in.CustomerID)
			if errors.Is(err, crm.ErrNotFound) {
				return nil, fmt.Errorf("no customer found with ID: %d", in.CustomerID)
			}
			if err != nil {
				return nil, err
			}

			if err := store.RecordEmail(ctx, crm.EmailRecord{
				CampaignID: in.CampaignID,
				CustomerID: in.CustomerID,
				Email:      email,
				Subject:    in.Subject,
				Body:       in.Body,
				Status:     in.Status,
				Opened:     in.Opened,
			}); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Successfully sent <%s> to customer <%d>!", in.Subject, in.CustomerID), nil
		},
	)
}

type crmQueryArgs struct {
	Query string `json:"query"`
}

// NewCRMQuery returns the read-only SQL query tool over the CRM database.
func NewCRMQuery(store *crm.Store) Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Read-only SELECT statement over crm, marketing_campaigns, or campaigning_emails.",
			},
		},
		"required": []string{"query"},
	}

	return NewFuncTool(
		"query",
		"Run a read-only SQL query against the CRM database.",
		schema,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in crmQueryArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid crm_query args: %w", err)
			}
			rows, err := store.Query(ctx, in.Query)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"rows":  rows,
				"count": len(rows),
			}, nil
		},
	)
}

func contains(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

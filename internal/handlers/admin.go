package handlers

import (
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/middleware"
	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/shridarpatil/queuebot/internal/store"
	"github.com/shridarpatil/queuebot/internal/templates"
	"github.com/shridarpatil/queuebot/pkg/whatsapp"
	"github.com/valyala/fasthttp"
	"github.com/zerodha/fastglue"
)

// CallNextResponse is the outcome of calling the next ticket
type CallNextResponse struct {
	Called    *models.TicketDetails `json:"called"`
	Completed []uuid.UUID           `json:"completed"`
	Message   string                `json:"message,omitempty"`
}

// CallNext completes the ticket being served and calls the next one
func (a *App) CallNext(r *fastglue.Request) error {
	orgID, err := getOrganizationID(r)
	if err != nil {
		return r.SendErrorEnvelope(fasthttp.StatusUnauthorized, "Unauthorized", nil, "")
	}

	serviceID, err := pathID(r)
	if err != nil {
		return r.SendErrorEnvelope(fasthttp.StatusBadRequest, "Invalid service ID", nil, "")
	}

	res, err := a.Tickets.CallNext(r.RequestCtx, orgID, serviceID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return r.SendErrorEnvelope(fasthttp.StatusNotFound, "Service not found", nil, "")
	case errors.Is(err, store.ErrQueueEmpty):
		resp := CallNextResponse{Completed: []uuid.UUID{}, Message: "No waiting tickets"}
		if res != nil {
			resp.Completed = nonNil(res.Completed)
		}
		return r.SendEnvelope(resp)
	case err != nil:
		a.Log.Error("Failed to call next ticket", "error", err, "service_id", serviceID)
		return r.SendErrorEnvelope(fasthttp.StatusInternalServerError, "Failed to call next ticket", nil, "")
	}

	a.Metrics.TicketCalled()
	if a.Notifier != nil {
		a.Notifier.TicketCalled(r.RequestCtx, res.Called)
	}
	a.Log.Info("Ticket called", "ticket_number", res.Called.TicketNumber, "service_id", serviceID)

	return r.SendEnvelope(CallNextResponse{Called: res.Called, Completed: nonNil(res.Completed)})
}

// ListConversations returns a customer's conversation rows, newest first
func (a *App) ListConversations(r *fastglue.Request) error {
	orgID, err := getOrganizationID(r)
	if err != nil {
		return r.SendErrorEnvelope(fasthttp.StatusUnauthorized, "Unauthorized", nil, "")
	}

	phone := whatsapp.NormalizeNumber(string(r.RequestCtx.QueryArgs().Peek("phone")))
	if phone == "" {
		return r.SendErrorEnvelope(fasthttp.StatusBadRequest, "phone is required", nil, "")
	}

	convs, err := a.Conversations.List(r.RequestCtx, phone, orgID)
	if err != nil {
		a.Log.Error("Failed to list conversations", "error", err, "phone", phone)
		return r.SendErrorEnvelope(fasthttp.StatusInternalServerError, "Failed to list conversations", nil, "")
	}
	if convs == nil {
		convs = []models.Conversation{}
	}

	return r.SendEnvelope(map[string]interface{}{
		"conversations": convs,
	})
}

// QRLinkResponse is a WhatsApp deep link for a location QR code
type QRLinkResponse struct {
	Link         string `json:"link"`
	Text         string `json:"text"`
	PhoneNumber  string `json:"phone_number"`
	Organization string `json:"organization,omitempty"`
}

// QRLink builds the wa.me link printed on a branch or department QR code
func (a *App) QRLink(r *fastglue.Request) error {
	orgID, err := getOrganizationID(r)
	if err != nil {
		return r.SendErrorEnvelope(fasthttp.StatusUnauthorized, "Unauthorized", nil, "")
	}

	args := r.RequestCtx.QueryArgs()
	branchParam := string(args.Peek("branch_id"))
	deptParam := string(args.Peek("department_id"))

	var kind, name, custom string
	var id uuid.UUID
	switch {
	case deptParam != "":
		if id, err = uuid.Parse(deptParam); err != nil {
			return r.SendErrorEnvelope(fasthttp.StatusBadRequest, "Invalid department_id", nil, "")
		}
		dept, err := a.Locations.Department(r.RequestCtx, id)
		if err != nil || dept.OrganizationID != orgID {
			return a.lookupFailed(r, err, "Department not found")
		}
		kind, name, custom = "department", dept.Name, dept.QRTemplate
	case branchParam != "":
		if id, err = uuid.Parse(branchParam); err != nil {
			return r.SendErrorEnvelope(fasthttp.StatusBadRequest, "Invalid branch_id", nil, "")
		}
		branch, err := a.Locations.Branch(r.RequestCtx, id)
		if err != nil || branch.OrganizationID != orgID {
			return a.lookupFailed(r, err, "Branch not found")
		}
		kind, name, custom = "branch", branch.Name, branch.QRTemplate
	default:
		return r.SendErrorEnvelope(fasthttp.StatusBadRequest, "branch_id or department_id is required", nil, "")
	}

	number, err := a.Numbers.OrganizationNumber(r.RequestCtx, orgID)
	if err != nil {
		return a.lookupFailed(r, err, "No business number configured")
	}

	ref := QRRef(kind, id)
	vars := map[string]interface{}{"name": name, "qr_ref": ref}
	var text string
	if custom != "" {
		text = templates.Render(custom, vars)
	} else {
		text = a.Templates.Render(r.RequestCtx, orgID, templates.KeyQRMessage, vars)
	}
	if !strings.Contains(text, ref) {
		text = strings.TrimSpace(text) + " " + ref
	}

	phone := whatsapp.NormalizeNumber(number.PhoneNumber)
	resp := QRLinkResponse{
		Link:        "https://wa.me/" + phone + "?" + url.Values{"text": {text}}.Encode(),
		Text:        text,
		PhoneNumber: phone,
	}
	if org, ok := middleware.GetOrganization(r); ok {
		resp.Organization = org.Name
	}
	return r.SendEnvelope(resp)
}

// lookupFailed answers 404 for missing or foreign rows and 500 otherwise.
func (a *App) lookupFailed(r *fastglue.Request, err error, notFoundMsg string) error {
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return r.SendErrorEnvelope(fasthttp.StatusNotFound, notFoundMsg, nil, "")
	}
	a.Log.Error("Lookup failed", "error", err, "path", string(r.RequestCtx.Path()))
	return r.SendErrorEnvelope(fasthttp.StatusInternalServerError, "Internal server error", nil, "")
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

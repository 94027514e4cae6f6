package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shridarpatil/queuebot/internal/models"
	"github.com/shridarpatil/queuebot/internal/templates"
)

// MenuItem is one numbered line of a selection menu. Numbers are positional
// and only valid for the menu they were shown in.
type MenuItem struct {
	Number        int
	ID            uuid.UUID
	Name          string
	Description   string
	EstimatedWait string
}

// BranchItems numbers branches 1..N, with the address as description.
func BranchItems(branches []models.Branch) []MenuItem {
	items := make([]MenuItem, len(branches))
	for i, b := range branches {
		items[i] = MenuItem{Number: i + 1, ID: b.ID, Name: b.Name, Description: b.Address}
	}
	return items
}

// DepartmentItems numbers departments 1..N.
func DepartmentItems(depts []models.Department) []MenuItem {
	items := make([]MenuItem, len(depts))
	for i, d := range depts {
		items[i] = MenuItem{Number: i + 1, ID: d.ID, Name: d.Name, Description: d.Description}
	}
	return items
}

// ServiceItems numbers services 1..N and annotates each with wait(service).
func ServiceItems(services []models.Service, wait func(models.Service) string) []MenuItem {
	items := make([]MenuItem, len(services))
	for i, s := range services {
		items[i] = MenuItem{Number: i + 1, ID: s.ID, Name: s.Name, Description: s.Description}
		if wait != nil {
			items[i].EstimatedWait = wait(s)
		}
	}
	return items
}

// RenderMenu renders one "N️⃣ Name" line per item, each optionally followed by
// an indented detail line.
func RenderMenu(items []MenuItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		line := fmt.Sprintf("%d\uFE0F\u20E3 %s", item.Number, item.Name)
		if detail := item.detail(); detail != "" {
			line += "\n    " + detail
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m MenuItem) detail() string {
	switch {
	case m.Description != "" && m.EstimatedWait != "":
		return m.Description + " · ⏱️ ~" + m.EstimatedWait
	case m.EstimatedWait != "":
		return "⏱️ ~" + m.EstimatedWait
	default:
		return m.Description
	}
}

// ParseSelection reads a menu number. Keycap emoji replies such as "2️⃣" are
// accepted.
func ParseSelection(text string) (int, bool) {
	text = strings.TrimSpace(strings.NewReplacer("\uFE0F", "", "\u20E3", "").Replace(text))
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (e *Engine) showBranchMenu(ctx context.Context, conv *models.Conversation) (string, error) {
	branches, err := e.Directory.Branches(ctx, conv.OrganizationID)
	if err != nil {
		e.Log.Error("Failed to list branches", "error", err, "organization_id", conv.OrganizationID)
		return e.render(ctx, conv.OrganizationID, templates.KeyDirectoryError, nil), nil
	}
	if len(branches) == 0 {
		return e.render(ctx, conv.OrganizationID, templates.KeyNoBranches, nil), nil
	}

	if err := e.update(ctx, conv, models.ConversationUpdate{State: statePtr(models.StateAwaitingBranchSelection)}); err != nil {
		return "", err
	}

	return e.render(ctx, conv.OrganizationID, templates.KeyBranchSelection, map[string]interface{}{
		"branch_list":       RenderMenu(BranchItems(branches)),
		"organization_name": e.organizationName(ctx, conv.OrganizationID),
	}), nil
}

func (e *Engine) showDepartmentMenu(ctx context.Context, conv *models.Conversation, branchID uuid.UUID) (string, error) {
	branch, err := e.Directory.Branch(ctx, branchID)
	if err != nil || branch.OrganizationID != conv.OrganizationID {
		e.Log.Error("Failed to load branch", "error", err, "branch_id", branchID, "organization_id", conv.OrganizationID)
		return e.render(ctx, conv.OrganizationID, templates.KeyDirectoryError, nil), nil
	}

	depts, err := e.Directory.Departments(ctx, conv.OrganizationID, branchID)
	if err != nil {
		e.Log.Error("Failed to list departments", "error", err, "branch_id", branchID)
		return e.render(ctx, conv.OrganizationID, templates.KeyDirectoryError, nil), nil
	}
	if len(depts) == 0 {
		return e.render(ctx, conv.OrganizationID, templates.KeyNoDepartments, map[string]interface{}{
			"branch_name": branch.Name,
		}), nil
	}

	if err := e.update(ctx, conv, models.ConversationUpdate{State: statePtr(models.StateAwaitingDepartmentSelection)}); err != nil {
		return "", err
	}

	return e.render(ctx, conv.OrganizationID, templates.KeyDepartmentSelection, map[string]interface{}{
		"department_list":   RenderMenu(DepartmentItems(depts)),
		"branch_name":       branch.Name,
		"branch_address":    branch.Address,
		"organization_name": e.organizationName(ctx, conv.OrganizationID),
	}), nil
}

func (e *Engine) showServiceMenu(ctx context.Context, conv *models.Conversation, deptID uuid.UUID) (string, error) {
	dept, err := e.Directory.Department(ctx, deptID)
	if err != nil || dept.OrganizationID != conv.OrganizationID {
		e.Log.Error("Failed to load department", "error", err, "department_id", deptID, "organization_id", conv.OrganizationID)
		return e.render(ctx, conv.OrganizationID, templates.KeyDirectoryError, nil), nil
	}

	services, err := e.Directory.Services(ctx, conv.OrganizationID, deptID)
	if err != nil {
		e.Log.Error("Failed to list services", "error", err, "department_id", deptID)
		return e.render(ctx, conv.OrganizationID, templates.KeyDirectoryError, nil), nil
	}
	if len(services) == 0 {
		return e.render(ctx, conv.OrganizationID, templates.KeyNoServices, map[string]interface{}{
			"department_name": dept.Name,
		}), nil
	}

	update := models.ConversationUpdate{State: statePtr(models.StateAwaitingServiceSelection)}
	if conv.BranchID == nil {
		// QR codes may carry only the department
		branchID := dept.BranchID
		update.BranchID = &branchID
	}
	if err := e.update(ctx, conv, update); err != nil {
		return "", err
	}

	branchName := ""
	if branch, err := e.Directory.Branch(ctx, dept.BranchID); err == nil {
		branchName = branch.Name
	}

	list := RenderMenu(ServiceItems(services, func(s models.Service) string {
		return e.EstimateWait(ctx, s.ID, &deptID, s.EstimatedDurationMinutes)
	}))

	return e.render(ctx, conv.OrganizationID, templates.KeyServiceSelection, map[string]interface{}{
		"service_list":      list,
		"department_name":   dept.Name,
		"branch_name":       branchName,
		"organization_name": e.organizationName(ctx, conv.OrganizationID),
	}), nil
}

// invalidSelection re-prompts after an out-of-range number.
func (e *Engine) invalidSelection(ctx context.Context, orgID uuid.UUID, itemType string, max int) string {
	return e.render(ctx, orgID, templates.KeyInvalidSelection, map[string]interface{}{
		"item_type": itemType,
		"max":       max,
	})
}

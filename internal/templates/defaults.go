package templates

// Message keys. Organizations may override any of them with a MessageTemplate
// row of the same key.
const (
	KeyBranchSelection     = "branch_selection"
	KeyDepartmentSelection = "department_selection"
	KeyServiceSelection    = "service_selection"
	KeyTicketConfirmation  = "ticket_confirmation"
	KeyTicketStatus        = "ticket_status"
	KeyTicketCancelled     = "ticket_cancelled"
	KeyTicketClosed        = "ticket_closed"
	KeyTicketCreateFailed  = "ticket_create_failed"
	KeyTicketNotFound      = "ticket_not_found"
	KeyConfirmedReminder   = "confirmed_reminder"
	KeyNewTicketHint       = "new_ticket_hint"
	KeyInvalidNumber       = "invalid_number"
	KeyInvalidSelection    = "invalid_selection"
	KeyNoBranches          = "no_branches"
	KeyNoDepartments       = "no_departments"
	KeyNoServices          = "no_services"
	KeyDirectoryError      = "directory_error"
	KeyMissingDepartment   = "missing_department"
	KeyMissingBranch       = "missing_branch"
	KeyPhoneNumberStep     = "phone_number_step"
	KeyUnknownState        = "unknown_state"
	KeyGenericError        = "generic_error"
	KeyUnknownBusiness     = "unknown_business_number"
	KeyTicketCalled        = "ticket_called"
	KeyTicketUpcoming      = "ticket_upcoming"
	KeyQRMessage           = "qr_message"
)

const supportLine = `{{if support_contact}}Please contact {{support_contact}} for help.{{else}}Please contact the front desk for help.{{endif}}`

// Defaults are the built-in messages used when an organization has no override.
var Defaults = map[string]string{
	KeyBranchSelection: "👋 Welcome{{if organization_name}} to *{{organization_name}}*{{endif}}!\n\n" +
		"Please choose a branch by replying with its number:\n\n{{branch_list}}",
	KeyDepartmentSelection: "{{if branch_name}}🏢 *{{branch_name}}*\n\n{{endif}}" +
		"Please choose a department by replying with its number:\n\n{{department_list}}",
	KeyServiceSelection: "{{if department_name}}🏬 *{{department_name}}*\n\n{{endif}}" +
		"Please choose a service by replying with its number:\n\n{{service_list}}",
	KeyTicketConfirmation: "✅ Your ticket has been created!\n\n" +
		"🎫 Ticket Number: *{{ticket_number}}*\n" +
		"{{if branch_name}}🏢 Branch: {{branch_name}}\n{{endif}}" +
		"🏬 Department: {{department_name}}\n" +
		"🛎️ Service: {{service_name}}\n" +
		"👥 Position in queue: {{queue_position}}\n" +
		"⏱️ Estimated wait: {{estimated_wait}}\n\n" +
		"Reply *status* to check your position or *cancel* to cancel your ticket.",
	KeyTicketStatus: "🎫 Ticket: *{{ticket_number}}*\n" +
		"🛎️ Service: {{service_name}}\n" +
		"📊 Status: {{ticket_status}}\n" +
		"👥 Current Position: {{queue_position}}\n" +
		"⏱️ Estimated wait: {{estimated_wait}}",
	KeyTicketCancelled: "❌ Your ticket *{{ticket_number}}* has been cancelled.\n\n" +
		"Send *hello* whenever you want a new ticket.",
	KeyTicketClosed: "ℹ️ Ticket *{{ticket_number}}* is already {{ticket_status}}.\n\n" +
		"Send *hello* to get a new ticket.",
	KeyTicketCreateFailed: "😔 Sorry, we couldn't create your ticket right now. " +
		"Please send the service number again to retry.",
	KeyTicketNotFound:  "We couldn't find your ticket. Please send *hello* to get a new one.",
	KeyConfirmedReminder: "Your ticket is *{{ticket_number}}*.\n\n" +
		"Reply *status* to check your position, *cancel* to cancel your ticket, or *hello* to start over.",
	KeyNewTicketHint:    "To get another ticket, please send *hello*.",
	KeyInvalidNumber:    "❌ Please reply with the number of your choice, for example *1*.",
	KeyInvalidSelection: "❌ Invalid {{item_type}} number. Please choose a number between 1 and {{max}}.",
	KeyNoBranches:       "😔 Sorry, there are no branches available right now. " + supportLine,
	KeyNoDepartments:    "😔 Sorry, there are no departments available at this branch. " + supportLine,
	KeyNoServices:       "😔 Sorry, there are no services available in this department. " + supportLine,
	KeyDirectoryError:   "😔 Sorry, we couldn't load the available options. " + supportLine,
	KeyMissingDepartment: "⚠️ We couldn't find your department selection. " +
		"Please send *hello* to start again.",
	KeyMissingBranch: "⚠️ We couldn't find your branch selection. " +
		"Please send *hello* to start again.",
	KeyPhoneNumberStep: "ℹ️ We already have your WhatsApp number, so there is no need to send it. " +
		"Please send *hello* to continue.",
	KeyUnknownState: "⚠️ Something went wrong with your session. Please send *hello* to start again.",
	KeyGenericError: "😔 Sorry, something went wrong on our side. " +
		"Please try again in a moment or send *hello* to start over.",
	KeyUnknownBusiness: "⚠️ This WhatsApp number is not linked to any organization yet. " +
		"Please contact the business directly.",
	KeyTicketCalled: "🔔 It's your turn! Ticket *{{ticket_number}}* is now being served" +
		"{{if department_name}} at {{department_name}}{{endif}}.",
	KeyTicketUpcoming: "⏳ Get ready! Ticket *{{ticket_number}}* is number {{queue_position}} " +
		"in line for {{service_name}}.",
	KeyQRMessage: "Hello! I'd like to join the queue at {{name}} {{qr_ref}}",
}

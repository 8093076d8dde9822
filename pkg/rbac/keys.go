package rbac

import (
	"fmt"
	"sort"
)

// Key identifies one gated capability or UI affordance
type Key int

// Navigation: top-level sections
const (
	NavHome Key = iota
	NavSales
	NavMarketing
	NavSocial
	NavAutomation
	NavOperations
	NavMessaging
	NavFinance
	NavSettings
	NavMaterials

	// Navigation: sales
	NavSalesPipeline
	NavSalesLeads
	NavSalesCRM
	NavSalesCRMContacts
	NavSalesCRMCompanies
	NavSalesQuotes
	NavSalesProposals
	NavSalesProposalsQueue
	NavSalesProposalsAI
	NavSalesProposalsManual
	NavSalesContracts
	NavSalesOrders
	NavSalesPlans
	NavSalesCRMAnalytics
	NavSalesDeals

	// Navigation: marketing
	NavMktOverview
	NavMktGoogle
	NavMktMeta
	NavMktTikTok

	// Navigation: social
	NavSocialDashboard
	NavSocialComposer
	NavSocialCalendar
	NavSocialLibrary
	NavSocialApproval
	NavSocialConnect
	NavSocialAnalytics

	// Navigation: automation
	NavAIPerformance
	NavAIRules
	NavAIInsights
	NavAIScanner
	NavAIAutomations
	NavAIWorkflows

	// Navigation: operations
	NavOpsClients
	NavOpsClientPortal
	NavOpsDocuments
	NavOpsTasks
	NavOpsBrokers
	NavOpsReferrals
	NavOpsRenewals
	NavOpsTraining
	NavOpsEmailTemplates

	// Navigation: messaging
	NavMsgWhatsApp
	NavMsgChat
	NavMsgChatPermissions
	NavMsgEmail
	NavMsgNotifications

	// Navigation: finance
	NavFinOverview
	NavFinProduction
	NavFinCommissions
	NavFinStatement
	NavFinBilling

	// Navigation: settings
	NavSettingsGeneral
	NavSettingsAPIs
	NavSettingsUsers
	NavSettingsProfile
	NavSettingsSecurity

	// Navigation: materials
	NavMatSalesKit
	NavMatBanners
	NavMatAIClone
	NavMatGallery
	NavMatUploads

	// Actions
	ActionCreateLead
	ActionEditLead
	ActionDeleteLead
	ActionExportCSV
	ActionCreateProposal
	ActionEditProposal
	ActionDeleteProposal
	ActionApproveProposal
	ActionManageBrokers
	ActionManageUsers
	ActionSendInvite
	ActionGenerateMagicLink
	ActionManageAutomations
	ActionManageIntegrations

	// Finance visibility
	FinViewDashboard
	FinViewCommissions
	FinLaunchCommissions
	FinViewGrid
	FinEditGrid
	FinViewProduction
	FinViewBilling

	// Marketing visibility
	MktViewMetaAds
	MktEditCampaigns
	MktViewAnalytics
	MktViewLeadSources

	keyCount
)

// RegistryVersion changes whenever a key is added, removed or renamed
const RegistryVersion = 2

var keyNames = [keyCount]string{
	NavHome:       "nav_home",
	NavSales:      "nav_sales",
	NavMarketing:  "nav_marketing",
	NavSocial:     "nav_social",
	NavAutomation: "nav_automation",
	NavOperations: "nav_operations",
	NavMessaging:  "nav_messaging",
	NavFinance:    "nav_finance",
	NavSettings:   "nav_settings",
	NavMaterials:  "nav_materials",

	NavSalesPipeline:        "nav_sales_pipeline",
	NavSalesLeads:           "nav_sales_leads",
	NavSalesCRM:             "nav_sales_crm",
	NavSalesCRMContacts:     "nav_sales_crm_contacts",
	NavSalesCRMCompanies:    "nav_sales_crm_companies",
	NavSalesQuotes:          "nav_sales_quotes",
	NavSalesProposals:       "nav_sales_proposals",
	NavSalesProposalsQueue:  "nav_sales_proposals_queue",
	NavSalesProposalsAI:     "nav_sales_proposals_ai",
	NavSalesProposalsManual: "nav_sales_proposals_manual",
	NavSalesContracts:       "nav_sales_contracts",
	NavSalesOrders:          "nav_sales_orders",
	NavSalesPlans:           "nav_sales_plans",
	NavSalesCRMAnalytics:    "nav_sales_crm_analytics",
	NavSalesDeals:           "nav_sales_deals",

	NavMktOverview: "nav_mkt_overview",
	NavMktGoogle:   "nav_mkt_google",
	NavMktMeta:     "nav_mkt_meta",
	NavMktTikTok:   "nav_mkt_tiktok",

	NavSocialDashboard: "nav_social_dashboard",
	NavSocialComposer:  "nav_social_composer",
	NavSocialCalendar:  "nav_social_calendar",
	NavSocialLibrary:   "nav_social_library",
	NavSocialApproval:  "nav_social_approval",
	NavSocialConnect:   "nav_social_connect",
	NavSocialAnalytics: "nav_social_analytics",

	NavAIPerformance: "nav_ai_performance",
	NavAIRules:       "nav_ai_rules",
	NavAIInsights:    "nav_ai_insights",
	NavAIScanner:     "nav_ai_scanner",
	NavAIAutomations: "nav_ai_automations",
	NavAIWorkflows:   "nav_ai_workflows",

	NavOpsClients:        "nav_ops_clients",
	NavOpsClientPortal:   "nav_ops_client_portal",
	NavOpsDocuments:      "nav_ops_documents",
	NavOpsTasks:          "nav_ops_tasks",
	NavOpsBrokers:        "nav_ops_brokers",
	NavOpsReferrals:      "nav_ops_referrals",
	NavOpsRenewals:       "nav_ops_renewals",
	NavOpsTraining:       "nav_ops_training",
	NavOpsEmailTemplates: "nav_ops_email_templates",

	NavMsgWhatsApp:        "nav_msg_whatsapp",
	NavMsgChat:            "nav_msg_chat",
	NavMsgChatPermissions: "nav_msg_chat_permissions",
	NavMsgEmail:           "nav_msg_email",
	NavMsgNotifications:   "nav_msg_notifications",

	NavFinOverview:    "nav_fin_overview",
	NavFinProduction:  "nav_fin_production",
	NavFinCommissions: "nav_fin_commissions",
	NavFinStatement:   "nav_fin_statement",
	NavFinBilling:     "nav_fin_billing",

	NavSettingsGeneral:  "nav_settings_general",
	NavSettingsAPIs:     "nav_settings_apis",
	NavSettingsUsers:    "nav_settings_users",
	NavSettingsProfile:  "nav_settings_profile",
	NavSettingsSecurity: "nav_settings_security",

	NavMatSalesKit: "nav_mat_sales_kit",
	NavMatBanners:  "nav_mat_banners",
	NavMatAIClone:  "nav_mat_ai_clone",
	NavMatGallery:  "nav_mat_gallery",
	NavMatUploads:  "nav_mat_uploads",

	ActionCreateLead:         "action_create_lead",
	ActionEditLead:           "action_edit_lead",
	ActionDeleteLead:         "action_delete_lead",
	ActionExportCSV:          "action_export_csv",
	ActionCreateProposal:     "action_create_proposal",
	ActionEditProposal:       "action_edit_proposal",
	ActionDeleteProposal:     "action_delete_proposal",
	ActionApproveProposal:    "action_approve_proposal",
	ActionManageBrokers:      "action_manage_brokers",
	ActionManageUsers:        "action_manage_users",
	ActionSendInvite:         "action_send_invite",
	ActionGenerateMagicLink:  "action_generate_magic_link",
	ActionManageAutomations:  "action_manage_automations",
	ActionManageIntegrations: "action_manage_integrations",

	FinViewDashboard:     "fin_view_dashboard",
	FinViewCommissions:   "fin_view_commissions",
	FinLaunchCommissions: "fin_launch_commissions",
	FinViewGrid:          "fin_view_grid",
	FinEditGrid:          "fin_edit_grid",
	FinViewProduction:    "fin_view_production",
	FinViewBilling:       "fin_view_billing",

	MktViewMetaAds:     "mkt_view_meta_ads",
	MktEditCampaigns:   "mkt_edit_campaigns",
	MktViewAnalytics:   "mkt_view_analytics",
	MktViewLeadSources: "mkt_view_lead_sources",
}

var keysByName = func() map[string]Key {
	m := make(map[string]Key, keyCount)
	for k, name := range keyNames {
		m[name] = Key(k)
	}
	return m
}()

// String returns the storage form of the key
func (k Key) String() string {
	if k < 0 || k >= keyCount {
		return fmt.Sprintf("Key(%d)", int(k))
	}
	return keyNames[k]
}

// Valid reports whether k is a member of the registry
func (k Key) Valid() bool {
	return k >= 0 && k < keyCount
}

// MarshalText implements encoding.TextMarshaler
func (k Key) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid permission key: %d", int(k))
	}
	return []byte(keyNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKey converts a storage name into a Key
func ParseKey(name string) (Key, error) {
	k, ok := keysByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown permission key: %q", name)
	}
	return k, nil
}

// IsValid reports whether name is a registered permission key
func IsValid(name string) bool {
	_, ok := keysByName[name]
	return ok
}

// AllKeys returns every registered key in declaration order
func AllKeys() []Key {
	keys := make([]Key, keyCount)
	for i := range keys {
		keys[i] = Key(i)
	}
	return keys
}

// KeyCount returns the size of the registry
func KeyCount() int {
	return int(keyCount)
}

// InvalidKeys returns the names in m that are not registered, sorted
func InvalidKeys(m map[string]bool) []string {
	var invalid []string
	for name := range m {
		if !IsValid(name) {
			invalid = append(invalid, name)
		}
	}
	sort.Strings(invalid)
	return invalid
}

package enums

// Capability names the boolean plan flags that bypass the numeric ledger.
type Capability string

const (
	CapabilityPremiumTemplates Capability = "premium_templates"
	CapabilityExportToPDF      Capability = "export_to_pdf"
	CapabilityPrioritySupport  Capability = "priority_support"
)

// String implements fmt.Stringer.
func (c Capability) String() string {
	return string(c)
}

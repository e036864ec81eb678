package types

// Version is the canonical project version.
// The CLI, the report format and the adapter event payload share this version.
const Version = "0.3.0"

// ContractVersion is stamped on published completion events.
const ContractVersion = Version

package domain

// SentinelExternalServices is the reserved host-list token representing "block
// every host that is not under xboxlive.com". It survives in the editable text
// format for compatibility, but is never stored as a literal host entry: the
// asterisks make it unresolvable as a real DNS name, and the policy maps it to
// its allow-list flag instead.
const SentinelExternalServices = "*external-services*"

// AllowListSuffix is the domain suffix exempt from allow-list-mode blocking.
const AllowListSuffix = "xboxlive.com"

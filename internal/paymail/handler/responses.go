package handler

// CapabilitiesResponse is the bsvalias capability document.
type CapabilitiesResponse struct {
	BSVAlias     string         `json:"bsvalias"`
	Capabilities map[string]any `json:"capabilities"`
}

type PKIResponse struct {
	BSVAlias string `json:"bsvalias"`
	Handle   string `json:"handle"`
	PubKey   string `json:"pubkey"`
}

type ProfileResponse struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Avatar string `json:"avatar"`
}

package handler

type RegisterResponse struct {
	Alias  string `json:"alias"`
	Handle string `json:"handle"`
}

type RegisterIdentityKeyResponse struct {
	Success bool   `json:"success"`
	Alias   string `json:"alias"`
	Paymail string `json:"paymail"`
}

type ListAliasesResponse struct {
	Aliases []string `json:"aliases"`
}

type DeleteAliasResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

package handler

import "signup-api/internal/signup/models"

// DomainsResponse is the body of GET /signup-api/domains.
type DomainsResponse struct {
	Domains []models.DomainInfo `json:"domains"`
}

// SignupResponse is the body of a successful signup.
type SignupResponse struct {
	Success bool `json:"success"`
}

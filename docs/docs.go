// Package docs holds the swagger document served at /swagger. Regenerate
// with go generate ./cmd/propdesk once swag is installed.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {"get": {"tags": ["health"], "summary": "Liveness probe", "responses": {"200": {"description": "OK"}}}},
        "/readyz": {"get": {"tags": ["health"], "summary": "Readiness probe", "responses": {"200": {"description": "OK"}, "503": {"description": "dependency down"}}}},
        "/api/auth/register": {"post": {"tags": ["auth"], "summary": "Register a user", "responses": {"201": {"description": "Created"}, "409": {"description": "email taken"}}}},
        "/api/auth/login": {"post": {"tags": ["auth"], "summary": "Log in", "responses": {"200": {"description": "OK"}, "401": {"description": "invalid credentials"}}}},
        "/api/auth/me": {"get": {"tags": ["auth"], "summary": "Current user", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/accounts": {
            "get": {"tags": ["accounts"], "summary": "List accounts", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["accounts"], "summary": "Create a challenge account", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}, "400": {"description": "invalid input"}}}
        },
        "/api/trades": {
            "get": {"tags": ["trades"], "summary": "List trades", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["trades"], "summary": "Place a manual trade", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}, "422": {"description": "risk violation"}}}
        },
        "/api/strategies": {
            "get": {"tags": ["strategies"], "summary": "List strategies", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["strategies"], "summary": "Attach a strategy to an account", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/api/dashboard/stats/overview": {"get": {"tags": ["dashboard"], "summary": "Portfolio overview", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/settings": {"get": {"tags": ["settings"], "summary": "List runtime settings", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "403": {"description": "admin only"}}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Propdesk API",
	Description:      "Prop-firm challenge accounts, trades, strategies and risk monitoring.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

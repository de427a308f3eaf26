// Package docs registers the OpenAPI description served at /swagger.
//
// The template below is maintained by hand, not generated by swag init.
// Update it together with the routes in internal/api;
// TestSwaggerDocsMatchRoutes in cmd/server fails when the two drift apart.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/api/auth/admin/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Admin login",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/api.loginRequest"}}],
                "responses": {"200": {"description": "token and user"}, "401": {"description": "invalid credentials"}, "429": {"description": "rate limited"}}
            }
        },
        "/api/auth/viewer/auth": {
            "post": {
                "tags": ["auth"],
                "summary": "Viewer password access",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/api.viewerRequest"}}],
                "responses": {"200": {"description": "viewer token"}, "401": {"description": "access denied"}}
            }
        },
        "/api/auth/me": {
            "get": {
                "tags": ["auth"],
                "security": [{"BearerAuth": []}],
                "summary": "Current admin",
                "responses": {"200": {"description": "user"}, "401": {"description": "unauthorized"}}
            }
        },
        "/api/members": {
            "get": {
                "tags": ["members"],
                "summary": "List members",
                "parameters": [
                    {"in": "query", "name": "active", "type": "boolean"},
                    {"in": "query", "name": "search", "type": "string"},
                    {"in": "query", "name": "page", "type": "integer"},
                    {"in": "query", "name": "limit", "type": "integer"}
                ],
                "responses": {"200": {"description": "page of members"}}
            },
            "post": {
                "tags": ["members"],
                "security": [{"BearerAuth": []}],
                "summary": "Create member",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/api.memberRequest"}}],
                "responses": {"201": {"description": "created"}, "400": {"description": "validation error"}, "409": {"description": "duplicate code or email"}}
            }
        },
        "/api/members/bulk-import": {
            "post": {
                "tags": ["members"],
                "security": [{"BearerAuth": []}],
                "summary": "Upsert members by code in one transaction",
                "responses": {"201": {"description": "imported"}, "400": {"description": "validation error"}}
            }
        },
        "/api/members/{code}": {
            "get": {
                "tags": ["members"],
                "summary": "Member with recent assessments and metrics",
                "parameters": [{"in": "path", "name": "code", "type": "string", "required": true}],
                "responses": {"200": {"description": "member"}, "404": {"description": "not found"}}
            },
            "put": {
                "tags": ["members"],
                "security": [{"BearerAuth": []}],
                "summary": "Partially update member",
                "parameters": [{"in": "path", "name": "code", "type": "string", "required": true}],
                "responses": {"200": {"description": "member"}, "404": {"description": "not found"}}
            },
            "delete": {
                "tags": ["members"],
                "security": [{"BearerAuth": []}],
                "summary": "Deactivate member",
                "parameters": [{"in": "path", "name": "code", "type": "string", "required": true}],
                "responses": {"200": {"description": "deactivated"}, "404": {"description": "not found"}}
            }
        },
        "/api/assessments": {
            "get": {
                "tags": ["assessments"],
                "summary": "List assessments, newest first",
                "parameters": [
                    {"in": "query", "name": "respondentCode", "type": "string"},
                    {"in": "query", "name": "page", "type": "integer"},
                    {"in": "query", "name": "limit", "type": "integer"}
                ],
                "responses": {"200": {"description": "page of assessments"}}
            },
            "post": {
                "tags": ["assessments"],
                "security": [{"BearerAuth": []}],
                "summary": "Create assessment",
                "responses": {"201": {"description": "created"}, "400": {"description": "validation error"}, "404": {"description": "respondent not found"}}
            }
        },
        "/api/assessments/{id}": {
            "get": {
                "tags": ["assessments"],
                "summary": "Assessment with respondent and metrics",
                "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
                "responses": {"200": {"description": "assessment"}, "404": {"description": "not found"}}
            },
            "put": {
                "tags": ["assessments"],
                "security": [{"BearerAuth": []}],
                "summary": "Partially update assessment",
                "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
                "responses": {"200": {"description": "assessment"}, "404": {"description": "not found"}}
            },
            "delete": {
                "tags": ["assessments"],
                "security": [{"BearerAuth": []}],
                "summary": "Delete assessment",
                "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
                "responses": {"200": {"description": "deleted"}, "409": {"description": "metrics reference it"}}
            }
        },
        "/api/metrics/team": {
            "get": {
                "tags": ["metrics"],
                "summary": "Team-wide statistics",
                "responses": {"200": {"description": "team view"}}
            }
        },
        "/api/metrics/member/{code}": {
            "get": {
                "tags": ["metrics"],
                "summary": "Per-member statistics",
                "parameters": [{"in": "path", "name": "code", "type": "string", "required": true}],
                "responses": {"200": {"description": "member view"}, "404": {"description": "not found"}}
            }
        },
        "/api/metrics/assessment/{id}/calculate": {
            "post": {
                "tags": ["metrics"],
                "security": [{"BearerAuth": []}],
                "summary": "Recalculate and persist metrics for one assessment",
                "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
                "responses": {"200": {"description": "calculation result"}, "400": {"description": "rank out of range"}, "404": {"description": "not found"}}
            }
        },
        "/health": {
            "get": {
                "tags": ["system"],
                "summary": "Health check",
                "responses": {"200": {"description": "healthy"}, "503": {"description": "degraded"}}
            }
        }
    },
    "definitions": {
        "api.loginRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {"username": {"type": "string"}, "password": {"type": "string"}}
        },
        "api.viewerRequest": {
            "type": "object",
            "required": ["password"],
            "properties": {"password": {"type": "string"}}
        },
        "api.memberRequest": {
            "type": "object",
            "required": ["code", "fullName", "email"],
            "properties": {
                "code": {"type": "string", "maxLength": 10},
                "fullName": {"type": "string"},
                "email": {"type": "string"},
                "position": {"type": "string"},
                "experienceMonths": {"type": "integer"},
                "employmentType": {"type": "string"},
                "isActive": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "team-pulse API",
	Description:      "Team analytics: members, assessments and derived ranking metrics.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

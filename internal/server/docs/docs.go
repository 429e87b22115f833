// Package docs registers the OpenAPI document of the HTTP API.
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
    "paths": {
        "/api/generate/url": {
            "post": {
                "description": "Streams timetables.zip, or returns the published URLs in object storage mode.",
                "consumes": ["application/json"],
                "produces": ["application/zip", "application/json"],
                "tags": ["generate"],
                "summary": "Generate timetables from a GTFS URL",
                "parameters": [
                    {
                        "description": "Feed URL and options",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/server.generateURLRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.generateResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/api/create-timetables": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/zip", "application/json"],
                "tags": ["generate"],
                "summary": "Generate timetables from a GTFS URL with the legacy defaults",
                "parameters": [
                    {
                        "description": "Feed URL and options",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/server.generateURLRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.generateResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/api/generate/file": {
            "post": {
                "description": "Streams timetables.zip, or returns the published URLs in object storage mode.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/zip", "application/json"],
                "tags": ["generate"],
                "summary": "Generate timetables from an uploaded GTFS archive",
                "parameters": [
                    {"type": "file", "description": "GTFS zip", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "Options JSON", "name": "options", "in": "formData"},
                    {"type": "string", "description": "Template name", "name": "template", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.generateResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/api/locations": {
            "get": {
                "produces": ["application/json"],
                "tags": ["feeds"],
                "summary": "List feed locations",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/api/feeds": {
            "get": {
                "produces": ["application/json"],
                "tags": ["feeds"],
                "summary": "List feeds of a location",
                "parameters": [
                    {"type": "string", "description": "Location ID", "name": "location", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.errorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/api/feed-versions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["feeds"],
                "summary": "List versions of a feed",
                "parameters": [
                    {"type": "string", "description": "Feed ID", "name": "feed", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.errorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/api/configs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["assets"],
                "summary": "List config documents",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.configsResponse"}}
                }
            }
        },
        "/api/configs/{name}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["assets"],
                "summary": "Get a config document",
                "parameters": [
                    {"type": "string", "description": "File name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/api/templates": {
            "get": {
                "produces": ["application/json"],
                "tags": ["assets"],
                "summary": "List templates",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.templatesResponse"}}
                }
            }
        },
        "/api/builds": {
            "get": {
                "produces": ["application/json"],
                "tags": ["builds"],
                "summary": "List build records",
                "parameters": [
                    {"type": "integer", "default": 20, "description": "Page size", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.buildsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/api/builds/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["builds"],
                "summary": "Get a build record",
                "parameters": [
                    {"type": "string", "description": "Build ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/build.Record"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.errorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.errorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.healthResponse"}}
                }
            }
        },
        "/ws": {
            "get": {
                "description": "WebSocket. Send {\"event\":\"create\",\"data\":{\"url\",\"buildId\",\"options\",\"template\"}}; receive {\"event\":\"status\",\"data\":{...}}.",
                "tags": ["generate"],
                "summary": "Build status channel",
                "responses": {
                    "101": {"description": "Switching Protocols"}
                }
            }
        }
    },
    "definitions": {
        "build.Record": {
            "type": "object",
            "properties": {
                "build_id": {"type": "string"},
                "source": {"type": "string"},
                "mode": {"type": "string", "enum": ["direct-stream", "object-storage"]},
                "outcome": {"type": "string", "enum": ["completed", "failed"]},
                "error_kind": {"type": "string"},
                "error_message": {"type": "string"},
                "timetable_count": {"type": "integer"},
                "agencies": {"type": "string"},
                "duration": {"type": "integer", "description": "Nanoseconds"},
                "finished_at": {"type": "string", "format": "date-time"}
            }
        },
        "server.buildsResponse": {
            "type": "object",
            "properties": {
                "builds": {"type": "array", "items": {"$ref": "#/definitions/build.Record"}}
            }
        },
        "server.configsResponse": {
            "type": "object",
            "properties": {
                "configs": {"type": "array", "items": {"type": "string"}}
            }
        },
        "server.errorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "server.generateResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "status": {"type": "string"},
                "build_id": {"type": "string"},
                "html_download_url": {"type": "string"},
                "html_preview_url": {"type": "string"},
                "timetable_count": {"type": "integer"}
            }
        },
        "server.generateURLRequest": {
            "type": "object",
            "properties": {
                "url": {"type": "string"},
                "options": {"type": "object"},
                "template": {"type": "string"}
            }
        },
        "server.healthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"}
            }
        },
        "server.templatesResponse": {
            "type": "object",
            "properties": {
                "templates": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {"name": {"type": "string"}}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "GTFS to HTML API",
	Description:      "Builds HTML timetables from GTFS feeds.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// Package docs is generated by swaggo/swag from the handler annotations.
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
        "/health": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "system"
                ],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/status": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "oven"
                ],
                "summary": "Get oven state",
                "description": "Persisted setpoints merged with the live temperature and actuator states.",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/models.OvenState"
                        }
                    },
                    "500": {
                        "description": "error",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    },
                    "503": {
                        "description": "error",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    }
                }
            }
        },
        "/set": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "oven"
                ],
                "summary": "Set one oven parameter",
                "parameters": [
                    {
                        "type": "string",
                        "name": "dev",
                        "in": "query",
                        "required": true,
                        "description": "Device",
                        "enum": [
                            "temp",
                            "light",
                            "fan",
                            "top",
                            "bottom",
                            "back",
                            "timer"
                        ]
                    },
                    {
                        "type": "string",
                        "name": "value",
                        "in": "query",
                        "required": true,
                        "description": "Value"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/models.OvenState"
                        }
                    },
                    "400": {
                        "description": "error",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    },
                    "401": {
                        "description": "error",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    },
                    "503": {
                        "description": "error",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/trend": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "oven"
                ],
                "summary": "Recent temperatures",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/events": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "events"
                ],
                "summary": "List oven events",
                "parameters": [
                    {
                        "type": "string",
                        "name": "from",
                        "in": "query",
                        "required": false,
                        "description": "From (RFC3339 or YYYY-MM-DD[ HH:MM:SS])"
                    },
                    {
                        "type": "string",
                        "name": "to",
                        "in": "query",
                        "required": false,
                        "description": "To"
                    },
                    {
                        "type": "string",
                        "name": "type",
                        "in": "query",
                        "required": false,
                        "description": "Event type"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "error",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    },
                    "500": {
                        "description": "error",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    }
                }
            }
        },
        "/auth/sign-up": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "auth"
                ],
                "summary": "Create the operator account",
                "parameters": [
                    {
                        "name": "input",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.authCredentials"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "error",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    },
                    "403": {
                        "description": "error",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    }
                }
            }
        },
        "/auth/sign-in": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "auth"
                ],
                "summary": "Get a bearer token",
                "parameters": [
                    {
                        "name": "input",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.authCredentials"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "error",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    },
                    "401": {
                        "description": "error",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    }
                }
            }
        },
        "/sysinfo": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "system"
                ],
                "summary": "Host statistics",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "500": {
                        "description": "error",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    }
                }
            }
        },
        "/ws": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "oven"
                ],
                "summary": "Oven state stream over WebSocket",
                "responses": {
                    "101": {
                        "description": "Switching Protocols"
                    }
                }
            }
        }
    },
    "definitions": {
        "models.OvenState": {
            "type": "object",
            "properties": {
                "temp": {
                    "type": "number"
                },
                "cooling": {
                    "type": "boolean"
                },
                "fan": {
                    "type": "boolean"
                },
                "light": {
                    "type": "boolean"
                },
                "top": {
                    "type": "boolean"
                },
                "bottom": {
                    "type": "boolean"
                },
                "back": {
                    "type": "boolean"
                },
                "set_temp": {
                    "type": "number"
                },
                "set_fan": {
                    "type": "boolean"
                },
                "set_light": {
                    "type": "boolean"
                },
                "set_top": {
                    "type": "boolean"
                },
                "set_bottom": {
                    "type": "boolean"
                },
                "set_back": {
                    "type": "boolean"
                },
                "timer": {
                    "type": "boolean"
                },
                "timer_start": {
                    "type": "string",
                    "format": "date-time"
                },
                "timer_minutes": {
                    "type": "integer"
                },
                "timer_left": {
                    "type": "integer"
                }
            }
        },
        "handlers.authCredentials": {
            "type": "object",
            "required": [
                "username",
                "password"
            ],
            "properties": {
                "username": {
                    "type": "string"
                },
                "password": {
                    "type": "string"
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Oven controller API",
	Description:      "Setpoints, live state and history of a hobby electric oven.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

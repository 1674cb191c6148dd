package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Syllabus API",
        "description": "Syllabus lifecycle management: drafting, approval workflow, attachments and the public catalog",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Syllabi", "description": "Syllabus drafting and listing"},
        {"name": "Workflow", "description": "Approval workflow actions"},
        {"name": "Files", "description": "Version attachments"},
        {"name": "Public", "description": "Published catalog, no authentication"}
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and issue an access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/syllabi": {
            "get": {
                "tags": ["Syllabi"],
                "summary": "List syllabi visible to the caller",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Syllabi"],
                "summary": "Create a draft syllabus",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSyllabusRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Caller is not a lecturer"}
                }
            }
        },
        "/syllabi/pending": {
            "get": {
                "tags": ["Workflow"],
                "summary": "List the reviewer queue for a role",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "role", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Caller does not hold the role"}
                }
            }
        },
        "/syllabi/{id}": {
            "get": {
                "tags": ["Syllabi"],
                "summary": "Get a syllabus with its current version",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found or not visible"}
                }
            },
            "put": {
                "tags": ["Syllabi"],
                "summary": "Update a draft syllabus",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSyllabusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Syllabus is no longer in draft"}
                }
            }
        },
        "/syllabi/{id}/submit": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Submit a draft for review",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/syllabi/{id}/hod-approve": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Approve a version under department review",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/syllabi/{id}/hod-reject": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Reject a version back to draft",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Missing rejection reason"}
                }
            }
        },
        "/syllabi/{id}/aa-approve": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Approve a version at the academic affairs stage",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/syllabi/{id}/aa-reject": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Reject a version back to department review",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Missing rejection reason"}
                }
            }
        },
        "/syllabi/{id}/publish": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Publish an approved version",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/syllabi/{id}/unpublish": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Withdraw a published version",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/syllabi/{id}/workflow-actions": {
            "get": {
                "tags": ["Workflow"],
                "summary": "List the audit trail of the current version",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/versions/{versionId}/files": {
            "get": {
                "tags": ["Files"],
                "summary": "List the attachments of a version",
                "parameters": [
                    {"name": "versionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Version not found or not visible"}
                }
            },
            "post": {
                "tags": ["Files"],
                "summary": "Attach a file to a draft version",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "versionId", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Rejected upload"},
                    "403": {"description": "Version is not an editable draft of the caller"}
                }
            }
        },
        "/files/{id}": {
            "patch": {
                "tags": ["Files"],
                "summary": "Change an attachment's display name",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RenameFileRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Files"],
                "summary": "Delete an attachment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/files/{id}/content": {
            "put": {
                "tags": ["Files"],
                "summary": "Replace an attachment's content",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/files/{id}/signed-url": {
            "get": {
                "tags": ["Files"],
                "summary": "Issue a presigned download link",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "expiresIn", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "expiresIn out of range"},
                    "404": {"description": "File not found or not visible"}
                }
            }
        },
        "/public/syllabi": {
            "get": {
                "tags": ["Public"],
                "summary": "List published syllabi",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/public/syllabi/export": {
            "get": {
                "tags": ["Public"],
                "summary": "Export the published catalog as CSV or PDF",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/public/syllabi/{id}": {
            "get": {
                "tags": ["Public"],
                "summary": "Get one published syllabus",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not published"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateSyllabusRequest": {
            "type": "object",
            "properties": {
                "subjectId": {"type": "string"},
                "programId": {"type": "string"}
            },
            "required": ["subjectId", "programId"]
        },
        "UpdateSyllabusRequest": {
            "type": "object",
            "properties": {
                "subjectId": {"type": "string"},
                "programId": {"type": "string"}
            }
        },
        "DecisionRequest": {
            "type": "object",
            "properties": {
                "note": {"type": "string"}
            }
        },
        "RejectRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            },
            "required": ["reason"]
        },
        "RenameFileRequest": {
            "type": "object",
            "properties": {
                "displayName": {"type": "string"}
            },
            "required": ["displayName"]
        },
        "Syllabus": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "subjectId": {"type": "string"},
                "programId": {"type": "string"},
                "ownerLecturerId": {"type": "string"},
                "currentVersionId": {"type": "string"},
                "lifecycleStatus": {"type": "string"},
                "createdAt": {"type": "string"},
                "currentVersion": {"$ref": "#/definitions/SyllabusVersion"}
            }
        },
        "SyllabusVersion": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "syllabusId": {"type": "string"},
                "academicYear": {"type": "string"},
                "versionNo": {"type": "integer"},
                "workflowStatus": {"type": "string"},
                "submittedAt": {"type": "string"},
                "approvedAt": {"type": "string"},
                "publishedAt": {"type": "string"},
                "createdBy": {"type": "string"},
                "createdAt": {"type": "string"}
            }
        },
        "FileAsset": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "versionId": {"type": "string"},
                "originalFilename": {"type": "string"},
                "displayName": {"type": "string"},
                "bucket": {"type": "string"},
                "objectPath": {"type": "string"},
                "mimeType": {"type": "string"},
                "sizeBytes": {"type": "integer"},
                "uploadedBy": {"type": "string"},
                "createdAt": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}

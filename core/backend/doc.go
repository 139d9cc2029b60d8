/*
Package backend implements the configurable REST backend

A backend generates create, read, update and delete routes for a list of domains. Every
domain is stored in the database collection of the same name.

Configuration

The configuration is done via JSON or Go values. Every domain has optional JSON schemas for
its five operations, an optional projection "keys" and optional views.

Example:
  {
	"domains": [
	  {
		"name": "users",
		"schemas": {
		  "create": {
			"type": "object",
			"properties": {
			  "email": {"type": "string", "format": "email", "required": true},
			  "password": {"type": "string", "required": true}
			}
		  },
		  "keys": ["id", "email"]
		}
	  }
	]
  }

The example creates the routes

	GET    /users       read many users, supports limit, offset and keys
	POST   /users       create a user
	GET    /users/{id}  read one user, supports keys
	PATCH  /users/{id}  update a user
	DELETE /users/{id}  delete a user

below the router passed to the builder, typically the sub-router of the API prefix.

Create and update validate the request body, read many, read one and delete validate
the query parameters without limit, offset and keys. Query parameters declared in the
read many schema filter the result by equality.

Files

A create or update schema with "acceptFiles": true accepts multipart bodies. Files are
accepted under the field names listed in "acceptedKeys", either plain names or
{"name": "photos", "maxCount": 5} objects, default is a single field "file". If the
builder has a KSS driver, every file is stored under <domain>/<uuid>/<filename> and the
key is merged into the body under the field name.

Formatters

Input formatters turn the validated request into the row which gets persisted, output
formatters transform the persisted row before it is returned. Both default to identity.
Formatters are attached with Builder.Formatters.

Responses

Handlers never write responses themselves. They stage {data, meta, links} or an error
in the per request Record, the finalizers installed by the backend write it. Errors carry
their HTTP status, validation errors are 400, rows which do not exist are 404.
*/
package backend

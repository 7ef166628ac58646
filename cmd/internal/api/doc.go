// Package api exposes account registration, activation and login over HTTP.
//
// JSON responses share one envelope:
//
//	{"success": false, "message": "user already exists", "code": "user_exists",
//	 "errors": [{"message": "user already exists", "code": 1, "field": "username"}]}
//
// Activation links are plain GETs that redirect to the login page with
// activated=true or activated=false.
package api

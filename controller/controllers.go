// controller/controllers.go
package controller

// Controllers groups every controller wired at startup.
type Controllers struct {
	Auth   *AuthController
	Policy *PolicyController
}

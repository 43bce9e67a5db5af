package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface is the set of operations exposed over HTTP.
type ServerInterface interface {
	// (GET /)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// (GET /api/datos)
	ListDatos(w http.ResponseWriter, r *http.Request)
	// (POST /api/datos)
	CreateDato(w http.ResponseWriter, r *http.Request)
	// (PUT /api/datos/{id})
	UpdateDato(w http.ResponseWriter, r *http.Request, id string)
	// (DELETE /api/datos/{id})
	DeleteDato(w http.ResponseWriter, r *http.Request, id string)
}

// Unimplemented answers every operation with 501.
type Unimplemented struct{}

func (Unimplemented) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) ListDatos(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) CreateDato(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) UpdateDato(w http.ResponseWriter, r *http.Request, id string) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) DeleteDato(w http.ResponseWriter, r *http.Request, id string) {
	w.WriteHeader(http.StatusNotImplemented)
}

// MiddlewareFunc wraps a single operation handler.
type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper converts HTTP requests into ServerInterface calls,
// binding path parameters on the way.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.GetHealth)
}

func (siw *ServerInterfaceWrapper) ListDatos(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.ListDatos)
}

func (siw *ServerInterfaceWrapper) CreateDato(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.CreateDato)
}

func (siw *ServerInterfaceWrapper) UpdateDato(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.UpdateDato(w, r, id)
	})
}

func (siw *ServerInterfaceWrapper) DeleteDato(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.DeleteDato(w, r, id)
	})
}

// bindID reads the {id} path parameter. The value is kept as text; the store
// decides whether it is a valid key.
func (siw *ServerInterfaceWrapper) bindID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithLocation("simple", false, "id", runtime.ParamLocationPath, chi.URLParam(r, "id"), &id)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
		return "", false
	}
	return id, true
}

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	var handler http.Handler = fn
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

// InvalidParamFormatError reports a path parameter that could not be bound.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler mounts si on a fresh chi router.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerWithOptions mounts si on options.BaseRouter, or a fresh router.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/", wrapper.GetHealth)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/datos", wrapper.ListDatos)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/datos", wrapper.CreateDato)
	})
	r.Group(func(r chi.Router) {
		r.Put(options.BaseURL+"/api/datos/{id}", wrapper.UpdateDato)
	})
	r.Group(func(r chi.Router) {
		r.Delete(options.BaseURL+"/api/datos/{id}", wrapper.DeleteDato)
	})
	return r
}

/**
 * @description
 * This file sets up the HTTP router for the portal-service using the go-chi/chi router.
 * It applies middleware for logging, CORS, and session authentication, and maps the
 * /portal routes to their handlers.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for the browser client.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PortalRoutes creates and returns the router for the portal service.
func PortalRoutes(h *PortalHandlers, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/portal", func(r chi.Router) {
		r.Post("/auth/login", h.LoginHandler)
		r.Post("/auth/register", h.RegisterHandler)
		r.Post("/auth/logout", h.LogoutHandler)

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(h.sessions, h.cookieSecure))

			r.Get("/dashboard", h.DashboardHandler)
			r.Put("/accounts/active", h.SelectAccountHandler)

			r.Post("/deposit", h.DepositHandler)
			r.Post("/paybill", h.PayBillHandler)
			r.Post("/self-transfer", h.SelfTransferHandler)

			r.Put("/profile", h.UpdateProfileHandler)
			r.Post("/password", h.ChangePasswordHandler)
			r.Post("/pin", h.SetPINHandler)

			r.Get("/card", h.CardHandler)
			r.Post("/card/toggle/{option}", h.ToggleCardHandler)
			r.Post("/reveal/{kind}", h.RevealHandler)
			r.Post("/hide/{kind}", h.HideHandler)

			r.Get("/activity", h.ActivityHandler)
			r.Get("/banks", h.BanksHandler)
			r.Post("/banks/{bankID}/link", h.LinkBankHandler)
			r.Get("/transactions.csv", h.TransactionsCSVHandler)
			r.Get("/spending", h.SpendingHandler)

			r.Get("/transfer", h.TransferStateHandler)
			r.Post("/transfer/open", h.OpenTransferHandler)
			r.Post("/transfer/close", h.CloseTransferHandler)
			r.Post("/transfer/recipient", h.RecipientChangedHandler)
			r.Post("/transfer/verify", h.VerifyRecipientHandler)
			r.Post("/transfer/submit", h.SubmitTransferHandler)
		})
	})

	return r
}

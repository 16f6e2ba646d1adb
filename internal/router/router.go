package router

import (
	"github.com/labstack/echo/v4"

	"github.com/gighall/crewbook/internal/handler"
	"github.com/gighall/crewbook/internal/middleware"
)

// Handlers bundles every HTTP handler the router wires up.
type Handlers struct {
	Auth          *handler.AuthHandler
	Gigs          *handler.GigHandler
	Applicants    *handler.ApplicantHandler
	Bookings      *handler.BookingHandler
	Shortlist     *handler.ShortlistHandler
	CrewChat      *handler.CrewChatHandler
	Notifications *handler.NotificationHandler
}

// Register wires all routes onto the Echo instance.  Unauthenticated
// surface is the health check, the auth endpoints and the public gig
// browse (optionally cached).  Everything else lives under /v1 behind
// JWT plus role middleware.
func Register(e *echo.Echo, h Handlers, jwtSecret string, cache, limiter echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)

	a := e.Group("/v1/auth")
	a.POST("/register", h.Auth.Register)
	a.POST("/login", h.Auth.Login)
	a.POST("/refresh", h.Auth.Refresh)
	a.POST("/refresh-access", h.Auth.RefreshAccess)
	a.POST("/logout", h.Auth.Logout)

	// Public browse.  The response cache only ever applies here; every
	// authenticated route bypasses it so reads always see committed writes.
	pub := e.Group("/v1")
	if cache != nil {
		pub.Use(cache)
	}
	pub.GET("/gigs", h.Gigs.List)
	pub.GET("/gigs/:id", h.Gigs.Get)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("CLIENT", "MUSICIAN"))
	if limiter != nil {
		auth.Use(limiter)
	}

	auth.GET("/me", h.Auth.Me)
	auth.POST("/auth/logout-all", h.Auth.Logout)
	auth.GET("/me/notifications", h.Notifications.ListMine)
	auth.GET("/me/crew-chats", h.CrewChat.ListMine)

	// Gig ownership operations are CLIENT-only; applying and withdrawing
	// are MUSICIAN-only.  Both roles can read history-adjacent surfaces
	// they are authorized for inside the handlers.
	client := auth.Group("", middleware.RequireRole("CLIENT"))
	musician := auth.Group("", middleware.RequireRole("MUSICIAN"))

	client.POST("/gigs", h.Gigs.Create)
	client.PATCH("/gigs/:id/roles/:idx", h.Gigs.UpdateRole)
	client.GET("/gigs/:id/history", h.Gigs.GetHistory)

	musician.POST("/gigs/:id/roles/:idx/applications", h.Applicants.Apply)
	musician.DELETE("/gigs/:id/roles/:idx/applications", h.Applicants.Withdraw)
	client.DELETE("/gigs/:id/roles/:idx/applicants/:userID", h.Applicants.RemoveApplicant)

	client.POST("/gigs/:id/roles/:idx/bookings", h.Bookings.Book)
	client.DELETE("/gigs/:id/roles/:idx/bookings/:userID", h.Bookings.Unbook)
	client.POST("/gigs/:id/bookings", h.Bookings.BookMusician)

	client.POST("/gigs/:id/shortlist", h.Shortlist.Add)
	client.DELETE("/gigs/:id/shortlist/:userID", h.Shortlist.Remove)
	client.GET("/gigs/:id/shortlist", h.Shortlist.List)
	musician.POST("/gigs/:id/interest", h.Shortlist.RegisterInterest)

	client.GET("/gigs/:id/crew-chat/eligibility", h.CrewChat.Eligibility)
	client.POST("/gigs/:id/crew-chat", h.CrewChat.Create)
	client.POST("/gigs/:id/crew-chat/members", h.CrewChat.AddMember)
	client.DELETE("/gigs/:id/crew-chat/members/:userID", h.CrewChat.RemoveMember)
	client.PATCH("/gigs/:id/crew-chat/settings", h.CrewChat.UpdateSettings)
	auth.GET("/gigs/:id/crew-chat", h.CrewChat.Get)
}

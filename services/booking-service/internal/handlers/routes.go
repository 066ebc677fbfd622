package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
)

// Routes mounts the public and admin API. Nil limit middlewares disable rate
// limiting for that route.
type Routes struct {
	Public       *PublicHandler
	Admin        *AdminHandler
	Session      *SessionHandler
	BookingLimit httpx.Middleware
	LoginLimit   httpx.Middleware
}

func (rt Routes) Register(mux *http.ServeMux) {
	limited := func(m httpx.Middleware, h http.HandlerFunc) http.Handler {
		if m == nil {
			return h
		}
		return m(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return rt.Session.RequireAdmin(h)
	}

	mux.HandleFunc("GET /api/slots", rt.Public.ListSlots)
	mux.Handle("POST /api/bookings", limited(rt.BookingLimit, rt.Public.CreateBooking))
	mux.HandleFunc("POST /api/cancel", rt.Public.Cancel)
	mux.HandleFunc("GET /api/cancel", rt.Public.CancelPreview)
	mux.HandleFunc("GET /api/ics", rt.Public.SlotCalendar)

	mux.Handle("POST /api/admin/login", limited(rt.LoginLimit, rt.Session.Login))
	mux.HandleFunc("POST /api/admin/logout", rt.Session.Logout)

	mux.Handle("POST /api/admin/slots", admin(rt.Admin.CreateSlot))
	mux.Handle("POST /api/admin/slots/bulk", admin(rt.Admin.BulkCreate))
	mux.Handle("POST /api/admin/slots/bulk-delete", admin(rt.Admin.BulkDelete))
	mux.Handle("PATCH /api/admin/slots/status", admin(rt.Admin.SetStatus))
	mux.Handle("DELETE /api/admin/slots/{id}", admin(rt.Admin.DeleteSlot))
	mux.Handle("GET /api/admin/bookings", admin(rt.Admin.ListBookings))
	mux.Handle("POST /api/admin/bookings/confirm-payment", admin(rt.Admin.ConfirmPayment))
	mux.Handle("GET /api/admin/export.csv", admin(rt.Admin.ExportCSV))
	mux.Handle("GET /api/admin/export.ics", admin(rt.Admin.ExportICS))
	mux.Handle("GET /api/admin/export.xlsx", admin(rt.Admin.ExportXLSX))
}

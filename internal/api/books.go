package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pubreg.chain/pubreg/internal/types"
)

func (s *Service) bookID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid book id")
		return 0, false
	}
	return id, true
}

func (s *Service) address(w http.ResponseWriter, r *http.Request) (types.Address, bool) {
	addr, err := types.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid address")
		return types.Address{}, false
	}
	return addr, true
}

// @Title: Get Book
// @Route: GET /api/books/{id}
// @Description: Returns a book record. Deleted books come back with cleared content; IDs never assigned are 404
// @Response: {"id": 1, "title": "...", "author_name": "...", "author_address": "0x...", "ipfs_hash": "...", "price": 10, "earnings": 0}
func (s *Service) HandleBook(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bookID(w, r)
	if !ok {
		return
	}
	book, err := s.reader.Book(id)
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	if book.ID == 0 {
		s.writeError(w, http.StatusNotFound, "book not found")
		return
	}
	s.writeJSON(w, http.StatusOK, book)
}

// @Title: Get Book Earnings
// @Route: GET /api/books/{id}/earnings
// @Description: Returns the total credited for a book
// @Response: {"book_id": 1, "earnings": 20}
func (s *Service) HandleEarnings(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bookID(w, r)
	if !ok {
		return
	}
	res, err := s.reader.Earnings(id)
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// @Title: Check Purchaser
// @Route: GET /api/books/{id}/purchasers/{address}
// @Description: Reports whether an address holds a purchase record for a book
// @Response: {"book_id": 1, "address": "0x...", "purchased": true}
func (s *Service) HandlePurchaser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bookID(w, r)
	if !ok {
		return
	}
	addr, ok := s.address(w, r)
	if !ok {
		return
	}
	res, err := s.reader.Purchaser(id, addr)
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

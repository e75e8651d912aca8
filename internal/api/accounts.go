package api

import "net/http"

// @Title: Get Author Balance
// @Route: GET /api/balances/{address}
// @Description: Returns the amount an author can withdraw from the registry
// @Response: {"address": "0x...", "balance": 10}
func (s *Service) HandleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.address(w, r)
	if !ok {
		return
	}
	res, err := s.reader.AuthorBalance(addr)
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// @Title: Get Account
// @Route: GET /api/accounts/{address}
// @Description: Returns the native balance and next transaction nonce of an address
// @Response: {"address": "0x...", "balance": 100, "nonce": 3}
func (s *Service) HandleAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.address(w, r)
	if !ok {
		return
	}
	acc, err := s.reader.Account(addr)
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, acc)
}

// @Title: Check Authorization
// @Route: GET /api/authorized/{address}
// @Description: Reports whether an address may act on behalf of authors
// @Response: {"address": "0x...", "authorized": true}
func (s *Service) HandleAuthorized(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.address(w, r)
	if !ok {
		return
	}
	res, err := s.reader.Authorized(addr)
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// @Title: Get Registry Summary
// @Route: GET /api/registry
// @Description: Returns owner, escrow holdings, liabilities, surplus and book count
// @Response: {"owner": "0x...", "escrow": "0x...", "escrow_balance": 12, "liabilities": 12, "surplus": 2, "book_count": 1, "height": 7}
func (s *Service) HandleRegistry(w http.ResponseWriter, r *http.Request) {
	res, err := s.reader.Registry()
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

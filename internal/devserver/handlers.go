package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"staffconsole/internal/attachment"
	"staffconsole/internal/auth"
	"staffconsole/internal/db"
	"staffconsole/internal/form"
	"staffconsole/internal/identityapi"
	"staffconsole/internal/validate"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func profileOf(a *db.Account) identityapi.Profile {
	return identityapi.Profile{
		ID:        strconv.FormatInt(a.ID, 10),
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Phone:     a.Phone,
		Role:      a.Role,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req identityapi.Credentials
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || req.Role == "" {
		writeMessage(w, http.StatusBadRequest, "Please provide all details!")
		return
	}
	key := throttleKey(clientIP(r), req.Email)
	if blocked, wait := s.throttle.Blocked(key); blocked {
		w.Header().Set("retry-after", retryAfterSeconds(wait))
		writeMessage(w, http.StatusTooManyRequests, "Too many login attempts, try again later")
		return
	}

	ctx := r.Context()
	acct, ok, err := s.db.GetAccountByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	if !ok {
		s.throttle.Fail(key)
		writeMessage(w, http.StatusBadRequest, "Invalid Email Or Password!")
		return
	}
	if okPw, err := auth.Verify(req.Password, acct.PassHash); err != nil || !okPw {
		s.throttle.Fail(key)
		writeMessage(w, http.StatusBadRequest, "Invalid Email Or Password!")
		return
	}
	if acct.Role != req.Role {
		s.throttle.Fail(key)
		writeMessage(w, http.StatusBadRequest, "User with this role not found!")
		return
	}
	s.throttle.Succeed(key)

	tok := auth.NewSessionToken()
	if err := s.db.CreateSession(ctx, tok, acct.ID, s.ttl); err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	setSessionCookie(w, r, tok, s.ttl)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User logged in successfully",
		"user":    profileOf(acct),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"user": profileOf(accountFrom(r.Context()))})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		if err := s.db.DeleteSession(r.Context(), c.Value); err != nil {
			writeMessage(w, http.StatusInternalServerError, "server error")
			return
		}
	}
	clearSessionCookie(w, r)
	writeMessage(w, http.StatusOK, "Admin Logged Out Successfully.")
}

func (s *Server) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	vals, _, err := s.readFields(w, r, s.admin)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	s.create(w, r, s.admin, vals, nil, "New Admin Registered")
}

func (s *Server) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	vals, avatar, err := s.readFields(w, r, s.staff)
	if err != nil {
		var ae *attachment.Error
		if errors.As(err, &ae) {
			writeMessage(w, http.StatusBadRequest, ae.Err.Error())
			return
		}
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if avatar == nil && s.staff.AttachmentRequired {
		writeMessage(w, http.StatusBadRequest, "Doctor avatar required!")
		return
	}
	s.create(w, r, s.staff, vals, avatar, "New Doctor Registered")
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, spec form.Spec, vals validate.Map, avatar *db.Avatar, okMsg string) {
	res := serverRules(spec).Evaluate(vals)
	if !res.OK {
		writeMessage(w, http.StatusBadRequest, res.Message)
		return
	}
	h, err := auth.Hash(res.Values[form.Password], s.hash)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	acct := db.Account{
		Email:      res.Values[form.Email],
		FirstName:  res.Values[form.FirstName],
		LastName:   res.Values[form.LastName],
		Phone:      res.Values[form.Phone],
		DOB:        res.Values[form.DOB],
		Gender:     res.Values[form.Gender],
		Role:       spec.Role,
		Department: res.Values[form.Department],
		PassHash:   h,
	}
	id, err := s.db.CreateAccount(r.Context(), acct, avatar)
	if errors.Is(err, db.ErrDuplicateEmail) {
		writeMessage(w, http.StatusConflict, "duplicate email")
		return
	}
	if err != nil {
		s.logger.Error("create account failed", "err", err)
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	by := accountFrom(r.Context())
	s.logger.Info("account created", "id", id, "role", spec.Role, "by", by.Email, "avatar", avatar != nil)
	writeMessage(w, http.StatusOK, okMsg)
}

// serverRules is spec's rule set without the confirmation field, which never
// leaves the client.
func serverRules(spec form.Spec) validate.RuleSet {
	out := make(validate.RuleSet, 0, len(spec.Rules))
	for _, rule := range spec.Rules {
		if rule.Field == form.ConfirmPassword {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// readFields decodes a JSON or multipart create body into form field names.
// The staged file, if any, is verified as an image.
func (s *Server) readFields(w http.ResponseWriter, r *http.Request, spec form.Spec) (validate.Map, *db.Avatar, error) {
	vals := validate.Map{}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("content-type"))
	var avatar *db.Avatar
	switch ct {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(s.maxUpload); err != nil {
			return nil, nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				vals[k] = v[0]
			}
		}
		if spec.AcceptsAttachment() {
			f, fh, err := r.FormFile(spec.AttachmentField)
			switch {
			case errors.Is(err, http.ErrMissingFile):
			case err != nil:
				return nil, nil, err
			default:
				defer f.Close()
				raw, err := io.ReadAll(f)
				if err != nil {
					return nil, nil, err
				}
				a, err := attachment.Encode(fh.Filename, raw, true)
				if err != nil {
					return nil, nil, err
				}
				avatar = &db.Avatar{Filename: a.Filename, MimeType: a.MimeType, Data: a.Raw}
			}
		}
	case "application/json", "":
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, nil, errors.New("invalid json")
		}
		for k, v := range body {
			if sv, ok := v.(string); ok {
				vals[k] = sv
			}
		}
	default:
		return nil, nil, fmt.Errorf("unsupported content type %q", ct)
	}

	if spec.DepartmentField != "" {
		if v, ok := vals[spec.DepartmentField]; ok {
			vals[form.Department] = v
		}
	}
	return vals, avatar, nil
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	av, ok, err := s.db.GetAvatar(r.Context(), id)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "server error")
		return
	}
	if !ok {
		writeMessage(w, http.StatusNotFound, "avatar not found")
		return
	}
	w.Header().Set("content-type", av.MimeType)
	w.Header().Set("content-disposition", fmt.Sprintf("inline; filename=%q", av.Filename))
	_, _ = w.Write(av.Data)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

//go:build integration

package auth_test

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/identityd/identityd/internal/web"
)

type response struct {
	status  int
	body    map[string]any
	cookies []*http.Cookie
	header  http.Header
}

func (r response) refreshCookie() *http.Cookie {
	for _, c := range r.cookies {
		if c.Name == web.RefreshCookieName {
			return c
		}
	}
	return nil
}

func (r response) accessToken() string {
	token, _ := r.body["accessToken"].(string)
	return token
}

func (r response) errorCode() string {
	errBody, _ := r.body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func call(method, path, body string, prepare ...func(*http.Request)) response {
	GinkgoHelper()
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, p := range prepare {
		p(req)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	out := response{status: resp.StatusCode, cookies: resp.Cookies(), header: resp.Header}
	if len(data) > 0 {
		Expect(json.Unmarshal(data, &out.body)).To(Succeed(), string(data))
	}
	return out
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func cookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value}) }
}

// uniqueEmail keeps specs independent on the shared database.
func uniqueEmail() string {
	return strings.ToLower(ulid.Make().String()) + "@example.com"
}

func registerBody(email string) string {
	return `{"email":"` + email + `","password":"Test1234@"}`
}

func loginBody(email, password string) string {
	return `{"email":"` + email + `","password":"` + password + `"}`
}

var _ = Describe("Registration", func() {
	It("creates an account and rejects a second one with the same email", func() {
		email := uniqueEmail()

		first := call(http.MethodPost, "/auth/register", registerBody(email))
		Expect(first.status).To(Equal(http.StatusCreated))
		Expect(first.body["user"]).To(HaveKeyWithValue("email", email))
		Expect(first.body["user"]).NotTo(HaveKey("passwordHash"))
		Expect(first.refreshCookie()).NotTo(BeNil())
		Expect(first.refreshCookie().HttpOnly).To(BeTrue())

		second := call(http.MethodPost, "/auth/register", registerBody(email))
		Expect(second.status).To(Equal(http.StatusConflict))
		Expect(second.errorCode()).To(Equal("AUTH_EMAIL_TAKEN"))
	})

	It("lets exactly one of several concurrent registrations win", func() {
		email := uniqueEmail()
		const attempts = 5

		statuses := make(chan int, attempts)
		var wg sync.WaitGroup
		for range attempts {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				statuses <- call(http.MethodPost, "/auth/register", registerBody(email)).status
			}()
		}
		wg.Wait()
		close(statuses)

		counts := map[int]int{}
		for s := range statuses {
			counts[s]++
		}
		Expect(counts).To(Equal(map[int]int{
			http.StatusCreated:  1,
			http.StatusConflict: attempts - 1,
		}))
	})
})

var _ = Describe("Sessions", func() {
	var email string

	BeforeEach(func() {
		email = uniqueEmail()
		Expect(call(http.MethodPost, "/auth/register", registerBody(email)).status).To(Equal(http.StatusCreated))
	})

	It("issues a different refresh token on every login", func() {
		first := call(http.MethodPost, "/auth/login", loginBody(email, "Test1234@"))
		second := call(http.MethodPost, "/auth/login", loginBody(email, "Test1234@"))

		Expect(first.status).To(Equal(http.StatusOK))
		Expect(second.status).To(Equal(http.StatusOK))
		Expect(first.refreshCookie().Value).NotTo(Equal(second.refreshCookie().Value))

		stale := call(http.MethodPost, "/auth/refresh", "", cookie(first.refreshCookie()))
		Expect(stale.status).To(Equal(http.StatusUnauthorized))
	})

	It("rejects wrong passwords without locking the account", func() {
		for range 3 {
			resp := call(http.MethodPost, "/auth/login", loginBody(email, "Wrong123!"))
			Expect(resp.status).To(Equal(http.StatusUnauthorized))
			Expect(resp.errorCode()).To(Equal("AUTH_INVALID_CREDENTIALS"))
		}
		Expect(call(http.MethodPost, "/auth/login", loginBody(email, "Test1234@")).status).To(Equal(http.StatusOK))
	})

	It("accepts a refresh token once", func() {
		login := call(http.MethodPost, "/auth/login", loginBody(email, "Test1234@"))

		first := call(http.MethodPost, "/auth/refresh", "", cookie(login.refreshCookie()))
		Expect(first.status).To(Equal(http.StatusOK))
		Expect(first.accessToken()).NotTo(BeEmpty())

		reused := call(http.MethodPost, "/auth/refresh", "", cookie(login.refreshCookie()))
		Expect(reused.status).To(Equal(http.StatusUnauthorized))
		Expect(reused.errorCode()).To(Equal("AUTH_INVALID_TOKEN"))

		next := call(http.MethodPost, "/auth/refresh", "", cookie(first.refreshCookie()))
		Expect(next.status).To(Equal(http.StatusOK))
	})

	It("lets exactly one concurrent refresh with the same token win", func() {
		login := call(http.MethodPost, "/auth/login", loginBody(email, "Test1234@"))
		const attempts = 6

		statuses := make(chan int, attempts)
		var wg sync.WaitGroup
		for range attempts {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				statuses <- call(http.MethodPost, "/auth/refresh", "", cookie(login.refreshCookie())).status
			}()
		}
		wg.Wait()
		close(statuses)

		ok := 0
		for s := range statuses {
			if s == http.StatusOK {
				ok++
			} else {
				Expect(s).To(Equal(http.StatusUnauthorized))
			}
		}
		Expect(ok).To(Equal(1))
	})

	It("ends the session on logout", func() {
		login := call(http.MethodPost, "/auth/login", loginBody(email, "Test1234@"))

		me := call(http.MethodGet, "/auth/me", "", bearer(login.accessToken()))
		Expect(me.status).To(Equal(http.StatusOK))
		Expect(me.body).To(HaveKeyWithValue("email", email))

		logout := call(http.MethodPost, "/auth/logout", "", bearer(login.accessToken()))
		Expect(logout.status).To(Equal(http.StatusOK))
		Expect(logout.body).To(HaveKeyWithValue("message", "logged out"))
		Expect(logout.header.Get("Set-Cookie")).To(ContainSubstring("refreshToken=;"))

		after := call(http.MethodPost, "/auth/refresh", "", cookie(login.refreshCookie()))
		Expect(after.status).To(Equal(http.StatusUnauthorized))

		again := call(http.MethodPost, "/auth/logout", "", bearer(login.accessToken()))
		Expect(again.status).To(Equal(http.StatusOK))
	})
})

package server_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cadenza-ai/cadenza/internal/event"
	"github.com/cadenza-ai/cadenza/internal/permission"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type messageEnvelope struct {
	Info  types.Message    `json:"info"`
	Parts []map[string]any `json:"parts"`
}

func doJSON(method, path string, body any, out any) *http.Response {
	GinkgoHelper()

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		buf = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, testSrv.URL+path, buf)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	if out != nil {
		Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
	}
	return resp
}

// respondOverHTTP answers a permission ask from outside the spec goroutine,
// so it avoids gomega assertions.
func respondOverHTTP(sessionID, permissionID string, reply permission.Reply) {
	body := strings.NewReader(fmt.Sprintf(`{"reply":%q}`, reply))
	url := fmt.Sprintf("%s/session/%s/permissions/%s", testSrv.URL, sessionID, permissionID)
	resp, err := http.Post(url, "application/json", body)
	if err == nil {
		resp.Body.Close()
	}
}

func createTestSession(title string) types.Session {
	GinkgoHelper()

	var sess types.Session
	resp := doJSON(http.MethodPost, "/session", map[string]string{"title": title}, &sess)
	Expect(resp.StatusCode).To(Equal(http.StatusCreated))
	Expect(sess.ID).NotTo(BeEmpty())
	return sess
}

var _ = Describe("Health", func() {
	It("reports ok", func() {
		var body map[string]string
		resp := doJSON(http.MethodGet, "/health", nil, &body)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["status"]).To(Equal("ok"))
	})
})

var _ = Describe("Session endpoints", func() {
	It("creates a session with the given title", func() {
		sess := createTestSession("My Task")
		Expect(sess.Title).To(Equal("My Task"))
		Expect(sess.Directory).To(Equal(workDir))
		Expect(sess.ProjectID).To(HaveLen(16))
	})

	It("defaults the title when none is given", func() {
		sess := createTestSession("")
		Expect(sess.Title).To(Equal("New Session"))
	})

	It("lists sessions for the configured directory", func() {
		sess := createTestSession("listed")

		var sessions []types.Session
		resp := doJSON(http.MethodGet, "/session", nil, &sessions)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		ids := make([]string, 0, len(sessions))
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
		Expect(ids).To(ContainElement(sess.ID))
	})

	It("fetches a session by ID", func() {
		sess := createTestSession("fetch me")

		var got types.Session
		resp := doJSON(http.MethodGet, "/session/"+sess.ID, nil, &got)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(got.ID).To(Equal(sess.ID))
		Expect(got.Title).To(Equal("fetch me"))
	})

	It("returns 404 for an unknown session", func() {
		var envelope errorEnvelope
		resp := doJSON(http.MethodGet, "/session/ses_missing", nil, &envelope)
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(envelope.Error.Code).To(Equal("NOT_FOUND"))
	})

	It("renames a session", func() {
		sess := createTestSession("old name")

		var got types.Session
		resp := doJSON(http.MethodPatch, "/session/"+sess.ID, map[string]string{"title": "new name"}, &got)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(got.Title).To(Equal("new name"))
	})

	It("rejects a rename without a title", func() {
		sess := createTestSession("kept")

		var envelope errorEnvelope
		resp := doJSON(http.MethodPatch, "/session/"+sess.ID, map[string]string{}, &envelope)
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(envelope.Error.Code).To(Equal("INVALID_REQUEST"))
	})

	It("forks a session into a child", func() {
		parent := createTestSession("parent")

		var child types.Session
		resp := doJSON(http.MethodPost, "/session/"+parent.ID+"/fork", map[string]string{}, &child)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		Expect(child.ID).NotTo(Equal(parent.ID))
		Expect(child.ParentID).NotTo(BeNil())
		Expect(*child.ParentID).To(Equal(parent.ID))
	})

	It("deletes a session", func() {
		sess := createTestSession("doomed")

		var body map[string]bool
		resp := doJSON(http.MethodDelete, "/session/"+sess.ID, nil, &body)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["deleted"]).To(BeTrue())

		resp = doJSON(http.MethodGet, "/session/"+sess.ID, nil, &errorEnvelope{})
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("reports aborted=false when nothing is running", func() {
		sess := createTestSession("idle")

		var body map[string]bool
		resp := doJSON(http.MethodPost, "/session/"+sess.ID+"/abort", nil, &body)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["aborted"]).To(BeFalse())
	})

	It("compacts a short session as a no-op", func() {
		sess := createTestSession("short")

		var body struct {
			SummaryID string `json:"summaryID"`
			Compacted int    `json:"compacted"`
		}
		resp := doJSON(http.MethodPost, "/session/"+sess.ID+"/compact", nil, &body)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body.SummaryID).To(BeEmpty())
		Expect(body.Compacted).To(BeZero())
	})
})

var _ = Describe("Message endpoints", func() {
	It("runs a prompt to completion and returns the assistant message", func() {
		sess := createTestSession("chat")
		scripted.script(textChunks("Hello back!", "stop"))

		var msg types.Message
		resp := doJSON(http.MethodPost, "/session/"+sess.ID+"/message",
			map[string]string{"text": "Hello"}, &msg)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(msg.Role).To(Equal(types.RoleAssistant))
		Expect(msg.Finish).NotTo(BeNil())
		Expect(*msg.Finish).To(Equal(types.FinishStop))
		Expect(msg.ModelID).To(Equal("scripted-model"))

		var listed []messageEnvelope
		resp = doJSON(http.MethodGet, "/session/"+sess.ID+"/message", nil, &listed)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(listed).To(HaveLen(2))
		Expect(listed[0].Info.Role).To(Equal(types.RoleUser))
		Expect(listed[0].Parts[0]["text"]).To(Equal("Hello"))
		Expect(listed[1].Info.ID).To(Equal(msg.ID))
		Expect(listed[1].Parts[0]["type"]).To(Equal("text"))
		Expect(listed[1].Parts[0]["text"]).To(Equal("Hello back!"))
	})

	It("executes tool calls before finishing the turn", func() {
		sess := createTestSession("tools")
		scripted.script(
			toolChunks("call_1", "echo", `{"text":"ping"}`),
			textChunks("done", "stop"),
		)

		var msg types.Message
		resp := doJSON(http.MethodPost, "/session/"+sess.ID+"/message",
			map[string]string{"text": "use the echo tool"}, &msg)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(*msg.Finish).To(Equal(types.FinishStop))

		var listed []messageEnvelope
		doJSON(http.MethodGet, "/session/"+sess.ID+"/message", nil, &listed)
		Expect(listed).To(HaveLen(3))

		toolMsg := listed[1]
		Expect(toolMsg.Info.Role).To(Equal(types.RoleAssistant))
		Expect(toolMsg.Parts).To(HaveLen(1))
		Expect(toolMsg.Parts[0]["type"]).To(Equal("tool"))
		Expect(toolMsg.Parts[0]["tool"]).To(Equal("echo"))

		state := toolMsg.Parts[0]["state"].(map[string]any)
		Expect(state["status"]).To(Equal("completed"))
		Expect(state["output"]).To(Equal("ping"))
	})

	It("rejects an empty prompt", func() {
		sess := createTestSession("empty")

		var envelope errorEnvelope
		resp := doJSON(http.MethodPost, "/session/"+sess.ID+"/message",
			map[string]string{"text": ""}, &envelope)
		Expect(resp.StatusCode).NotTo(Equal(http.StatusOK))
	})

	It("returns 404 when prompting an unknown session", func() {
		var envelope errorEnvelope
		resp := doJSON(http.MethodPost, "/session/ses_missing/message",
			map[string]string{"text": "hi"}, &envelope)
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(envelope.Error.Code).To(Equal("NOT_FOUND"))
	})

	It("fetches a single message by ID", func() {
		sess := createTestSession("single")
		scripted.script(textChunks("reply", "stop"))

		var msg types.Message
		doJSON(http.MethodPost, "/session/"+sess.ID+"/message",
			map[string]string{"text": "hi"}, &msg)

		var got messageEnvelope
		resp := doJSON(http.MethodGet, "/session/"+sess.ID+"/message/"+msg.ID, nil, &got)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(got.Info.ID).To(Equal(msg.ID))
		Expect(got.Parts).To(HaveLen(1))
	})
})

var _ = Describe("Permission flow", func() {
	It("runs a guarded tool after consent arrives over HTTP", func() {
		sess := createTestSession("guarded")
		scripted.script(
			toolChunks("call_g", "guarded", `{}`),
			textChunks("done", "stop"),
		)

		unsubscribe := event.Subscribe(event.PermissionAsked, func(ev event.Event) {
			data, ok := ev.Data.(event.PermissionAskedData)
			if !ok || data.SessionID != sess.ID {
				return
			}
			go respondOverHTTP(sess.ID, data.ID, permission.ReplyOnce)
		})
		defer unsubscribe()

		var msg types.Message
		resp := doJSON(http.MethodPost, "/session/"+sess.ID+"/message",
			map[string]string{"text": "run the guarded tool"}, &msg)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(*msg.Finish).To(Equal(types.FinishStop))

		var listed []messageEnvelope
		doJSON(http.MethodGet, "/session/"+sess.ID+"/message", nil, &listed)
		state := listed[1].Parts[0]["state"].(map[string]any)
		Expect(state["status"]).To(Equal("completed"))
		Expect(state["output"]).To(Equal("granted"))
	})

	It("records a denial as a tool error and stops the turn", func() {
		sess := createTestSession("denied")
		scripted.script(toolChunks("call_d", "guarded", `{}`))

		unsubscribe := event.Subscribe(event.PermissionAsked, func(ev event.Event) {
			data, ok := ev.Data.(event.PermissionAskedData)
			if !ok || data.SessionID != sess.ID {
				return
			}
			go respondOverHTTP(sess.ID, data.ID, permission.ReplyDeny)
		})
		defer unsubscribe()

		var msg types.Message
		resp := doJSON(http.MethodPost, "/session/"+sess.ID+"/message",
			map[string]string{"text": "try the guarded tool"}, &msg)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(msg.Finish).NotTo(BeNil())
		Expect(*msg.Finish).To(Equal(types.FinishError))
		Expect(msg.Error).NotTo(BeNil())

		var listed []messageEnvelope
		doJSON(http.MethodGet, "/session/"+sess.ID+"/message", nil, &listed)
		state := listed[1].Parts[0]["state"].(map[string]any)
		Expect(state["status"]).To(Equal("error"))
	})

	It("rejects an unknown reply value", func() {
		sess := createTestSession("badreply")

		var envelope errorEnvelope
		resp := doJSON(http.MethodPost,
			"/session/"+sess.ID+"/permissions/perm_x",
			map[string]string{"reply": "maybe"}, &envelope)
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(envelope.Error.Code).To(Equal("INVALID_REQUEST"))
	})
})

var _ = Describe("Event stream", func() {
	It("opens with a server.connected event", func() {
		req, err := http.NewRequest(http.MethodGet, testSrv.URL+"/event", nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))

		reader := bufio.NewReader(resp.Body)
		line, err := reader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.TrimSpace(line)).To(Equal("event: server.connected"))
	})
})

var _ = Describe("Metadata endpoints", func() {
	It("redacts provider credentials in the config", func() {
		var cfg map[string]any
		resp := doJSON(http.MethodGet, "/config", nil, &cfg)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		providers := cfg["provider"].(map[string]any)
		entry := providers["scripted"].(map[string]any)
		Expect(entry["apiKey"]).To(Equal("(redacted)"))
	})

	It("lists providers with their models", func() {
		var providers []struct {
			ID     string        `json:"id"`
			Name   string        `json:"name"`
			Models []types.Model `json:"models"`
		}
		resp := doJSON(http.MethodGet, "/provider", nil, &providers)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(providers).To(HaveLen(1))
		Expect(providers[0].ID).To(Equal("scripted"))
		Expect(providers[0].Models).To(HaveLen(1))
		Expect(providers[0].Models[0].ID).To(Equal("scripted-model"))
	})

	It("lists the built-in agents", func() {
		var agents []struct {
			Name string `json:"name"`
		}
		resp := doJSON(http.MethodGet, "/agent", nil, &agents)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		names := make([]string, 0, len(agents))
		for _, a := range agents {
			names = append(names, a.Name)
		}
		Expect(names).To(ContainElements("code", "plan"))
	})

	It("lists registered tool IDs", func() {
		var tools []string
		resp := doJSON(http.MethodGet, "/tool", nil, &tools)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(tools).To(ContainElements("echo", "guarded"))
	})
})

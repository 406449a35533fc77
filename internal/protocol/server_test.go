package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"projd/internal/service"
	"projd/internal/testutil"
)

type response struct {
	ID     interface{}     `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func newTestServer(t *testing.T, files map[string]string) (*Server, *service.Service) {
	t.Helper()
	fx := testutil.NewFixture(t, true, files)
	svc := service.New(service.Options{FS: fx.FS, LibFile: testutil.LibPath})
	t.Cleanup(func() { _ = svc.Close() })
	return NewServer(svc, Options{Debounce: -1}), svc
}

func request(t *testing.T, id int, method string, params interface{}) string {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	line, err := json.Marshal(Message{Jsonrpc: "2.0", ID: id, Method: method, Params: raw})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return string(line)
}

// serve runs the server over the given request lines and returns the
// responses in order.
func serve(t *testing.T, s *Server, lines ...string) []response {
	t.Helper()
	var out bytes.Buffer
	s.in = strings.NewReader(strings.Join(lines, "\n") + "\n")
	s.out = &out
	if err := s.Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	var resps []response
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var r response
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("bad response line %q: %v", line, err)
		}
		resps = append(resps, r)
	}
	return resps
}

func decodeResult(t *testing.T, r response, v interface{}) {
	t.Helper()
	if r.Error != nil {
		t.Fatalf("response %v: error %d %s", r.ID, r.Error.Code, r.Error.Message)
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		t.Fatalf("decode result %s: %v", r.Result, err)
	}
}

func TestServe_OpenAndQuery(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"/a/b/tsconfig.json": `{"include": ["*.ts"]}`,
		"/a/b/f1.ts":         "export const one = 1;\n",
		"/a/b/f2.ts":         "import { one } from \"./f1\";\nconst two = one + 1;\n",
		testutil.LibPath:     testutil.LibContent,
	})

	resps := serve(t, s,
		request(t, 1, "openFile", map[string]string{"file": "/a/b/f2.ts"}),
		request(t, 2, "getProjectsForFile", map[string]string{"file": "/a/b/f2.ts"}),
		request(t, 3, "findDefinitions", map[string]interface{}{"file": "/a/b/f2.ts", "line": 2, "offset": 13}),
		request(t, 4, "semanticDiagnostics", map[string]string{"file": "/a/b/f2.ts"}),
		request(t, 5, "projectInfo", map[string]string{"file": "/a/b/f2.ts"}),
		request(t, 6, "drain", nil),
	)
	if len(resps) != 6 {
		t.Fatalf("got %d responses, want 6", len(resps))
	}

	var open service.OpenResult
	decodeResult(t, resps[0], &open)
	if open.ConfigFileName != "/a/b/tsconfig.json" || len(open.ConfigFileErrors) != 0 {
		t.Errorf("openFile = %+v", open)
	}

	var refs []struct{ Name, Kind string }
	decodeResult(t, resps[1], &refs)
	if len(refs) != 1 || refs[0].Name != "/a/b/tsconfig.json" || refs[0].Kind != "configured" {
		t.Errorf("getProjectsForFile = %+v", refs)
	}

	var defs struct {
		Definitions []struct {
			File  string
			Start struct{ Line, Offset int }
		}
	}
	decodeResult(t, resps[2], &defs)
	if len(defs.Definitions) != 1 || defs.Definitions[0].File != "/a/b/f1.ts" || defs.Definitions[0].Start.Line != 1 {
		t.Errorf("findDefinitions = %+v", defs)
	}

	var diags []json.RawMessage
	decodeResult(t, resps[3], &diags)
	if len(diags) != 0 {
		t.Errorf("semanticDiagnostics = %s", resps[3].Result)
	}

	var info service.ProjectInfo
	decodeResult(t, resps[4], &info)
	testutil.AssertSameSet(t, "roots", info.RootFiles, []string{"/a/b/f1.ts", "/a/b/f2.ts"})
}

func TestServe_Errors(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"/x/a.ts": "let a = 1"})

	resps := serve(t, s,
		`{"jsonrpc":"2.0","id":1,"method":`,
		request(t, 2, "noSuchMethod", nil),
		request(t, 3, "closeFile", map[string]string{"file": "/x/a.ts"}),
		request(t, 4, "compilerOptionsDiagnostics", map[string]string{"projectFileName": "/x/tsconfig.json"}),
		request(t, 5, "findDefinitions", map[string]interface{}{"file": "/x/a.ts", "line": 0, "offset": 1}),
		request(t, 6, "openFile", "not an object"),
	)
	want := []int{ParseError, MethodNotFound, InvalidParams, InvalidParams, InvalidParams, InvalidParams}
	if len(resps) != len(want) {
		t.Fatalf("got %d responses, want %d", len(resps), len(want))
	}
	for i, r := range resps {
		if r.Error == nil {
			t.Errorf("response %d: no error, result %s", i, r.Result)
			continue
		}
		if r.Error.Code != want[i] {
			t.Errorf("response %d: code %d, want %d (%s)", i, r.Error.Code, want[i], r.Error.Message)
		}
	}
}

func TestServe_NotificationsGetNoResponse(t *testing.T) {
	s, svc := newTestServer(t, map[string]string{"/n/a.ts": "let a = 1"})

	resps := serve(t, s,
		`{"jsonrpc":"2.0","method":"openFile","params":{"file":"/n/a.ts"}}`,
		request(t, 1, "drain", nil),
	)
	if len(resps) != 1 {
		t.Fatalf("got %d responses, want 1", len(resps))
	}
	if !svc.IsOpen("/n/a.ts") {
		t.Error("notification was not applied")
	}
}

func TestServe_BuildProjectReferences(t *testing.T) {
	s, _ := newTestServer(t, testutil.ContainerFiles())

	resps := serve(t, s,
		request(t, 1, "buildProjectReferences", map[string]interface{}{"rootConfigPaths": []string{testutil.ContainerConfig}}),
		request(t, 2, "buildProjectReferences", map[string]interface{}{"rootConfigPaths": []string{testutil.ContainerConfig}}),
	)
	var first, second service.BuildSummary
	decodeResult(t, resps[0], &first)
	decodeResult(t, resps[1], &second)
	if first.BuiltCount != 3 || len(first.Errors) != 0 {
		t.Errorf("first build = %+v", first)
	}
	if second.BuiltCount != 0 || second.SkippedCount != 4 {
		t.Errorf("second build = %+v", second)
	}
}

func TestServe_CancelledContext(t *testing.T) {
	s, _ := newTestServer(t, nil)
	r, w := io.Pipe()
	defer w.Close()
	s.in = r
	s.out = &bytes.Buffer{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Serve(ctx); err != nil {
		t.Errorf("Serve after cancel: %v", err)
	}
}

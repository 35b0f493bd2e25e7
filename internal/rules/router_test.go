package rules

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/solatis/matchbox/internal/types"
)

var (
	uuidC = uuid.MustParse("a921a9aa-ec0e-4cf3-a6cc-1aa5583d150c")
	uuidD = uuid.MustParse("a921a9aa-ec0e-4cf3-a6cc-1aa5583d150d")
	uuidE = uuid.MustParse("a921a9aa-ec0e-4cf3-a6cc-1aa5583d150e")
)

func mustAdd(t *testing.T, r *Router, priority uint64, id uuid.UUID, atc string) {
	t.Helper()
	if err := r.AddMatcher(priority, id, atc); err != nil {
		t.Fatalf("AddMatcher(%d, %s, %q) error = %v, want nil", priority, id, atc, err)
	}
}

func TestRouter_PathPrefixAndPort(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)
	mustAdd(t, r, 0, uuidC, `http.path ^= "/foo" && tcp.port == 80`)

	ctx := NewContext(schema)
	addString(t, ctx, "http.path", "/foo/bar")
	if err := ctx.AddValue("tcp.port", types.IntValue(80)); err != nil {
		t.Fatalf("AddValue() error = %v, want nil", err)
	}

	if !r.Execute(ctx) {
		t.Fatal("Execute() = false, want true")
	}
	if ctx.Result.UUID != uuidC {
		t.Errorf("Result.UUID = %s, want %s", ctx.Result.UUID, uuidC)
	}
	if got := ctx.Result.Matches["http.path"].Str; got != "/foo" {
		t.Errorf("matched value = %q, want %q", got, "/foo")
	}
	if len(ctx.Result.Captures) != 0 {
		t.Errorf("Captures = %v, want empty", ctx.Result.Captures)
	}
}

func TestRouter_PriorityWins(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)
	mustAdd(t, r, 1, uuidC, `http.path ^= "/foo" && tcp.port == 80`)
	mustAdd(t, r, 0, uuidD, `http.path ^= "/"`)

	ctx := NewContext(schema)
	addString(t, ctx, "http.path", "/foo/bar")
	if err := ctx.AddValue("tcp.port", types.IntValue(80)); err != nil {
		t.Fatalf("AddValue() error = %v, want nil", err)
	}

	if !r.Execute(ctx) {
		t.Fatal("Execute() = false, want true")
	}
	if ctx.Result.UUID != uuidC {
		t.Errorf("Result.UUID = %s, want higher-priority %s", ctx.Result.UUID, uuidC)
	}
}

func TestRouter_PriorityTieBrokenByUUID(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)
	// Insert in reverse uuid order to prove ordering is not insertion order.
	mustAdd(t, r, 5, uuidD, `http.path ^= "/"`)
	mustAdd(t, r, 5, uuidC, `http.path ^= "/"`)

	ctx := NewContext(schema)
	addString(t, ctx, "http.path", "/anything")

	if !r.Execute(ctx) {
		t.Fatal("Execute() = false, want true")
	}
	if ctx.Result.UUID != uuidC {
		t.Errorf("Result.UUID = %s, want ascending-uuid winner %s", ctx.Result.UUID, uuidC)
	}
}

func TestRouter_RawStringRegex(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)
	mustAdd(t, r, 0, uuidC, `http.path ~ r#"^/\d+/test$"# && tcp.port == 80`)

	ctx := NewContext(schema)
	addString(t, ctx, "http.path", "/123/test")
	if err := ctx.AddValue("tcp.port", types.IntValue(80)); err != nil {
		t.Fatalf("AddValue() error = %v, want nil", err)
	}

	if !r.Execute(ctx) {
		t.Fatal("Execute() = false, want true")
	}
	if got := ctx.Result.Matches["http.path"].Str; got != "/123/test" {
		t.Errorf("matched value = %q, want %q", got, "/123/test")
	}
	if len(ctx.Result.Captures) != 0 {
		t.Errorf("Captures = %v, want empty", ctx.Result.Captures)
	}
}

func TestRouter_MultiValueHeaderEquality(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)
	mustAdd(t, r, 0, uuidC, `http.headers.foo == "bar"`)

	// Equality is existential over multi-valued fields: one matching value
	// is enough, extra non-matching values do not veto.
	ctx := NewContext(schema)
	addString(t, ctx, "http.headers.foo", "bar")
	addString(t, ctx, "http.headers.foo", "bar")
	addString(t, ctx, "http.headers.foo", "barX")

	if !r.Execute(ctx) {
		t.Error("Execute() = false, want true (existential equality)")
	}

	ctx.Reset()
	addString(t, ctx, "http.headers.foo", "barX")
	if r.Execute(ctx) {
		t.Error("Execute() = true, want false (no value equals literal)")
	}
}

func TestRouter_ValidateErrorSurface(t *testing.T) {
	schema := types.NewSchema()
	schema.AddField("http.headers.foo", types.TypeString)

	_, err := Validate(schema, "http.headers.foo == 123")
	if err == nil {
		t.Fatal("Validate() error = nil, want type mismatch")
	}
	if err.Error() != "Type mismatch between the LHS and RHS values of predicate" {
		t.Errorf("error = %q, want exact type mismatch text", err.Error())
	}
}

func TestRouter_ValidateMatchesAddMatcherFields(t *testing.T) {
	schema := testSchema()

	exprs := []string{
		`http.path ^= "/foo" && tcp.port == 80`,
		`http.headers.host == "example.com" || l3.ip in 10.0.0.0/8`,
		`!(http.path == "/x") && any(http.headers.accept) contains "json"`,
	}

	for _, atc := range exprs {
		t.Run(atc, func(t *testing.T) {
			fromValidate, err := Validate(schema, atc)
			if err != nil {
				t.Fatalf("Validate() error = %v, want nil", err)
			}

			r := NewRouter(schema)
			mustAdd(t, r, 0, uuidC, atc)
			fromRouter := r.Fields()

			if diff := cmp.Diff(fromValidate, fromRouter); diff != "" {
				t.Errorf("field sets differ (-validate +router):\n%s", diff)
			}
		})
	}
}

func TestRouter_DuplicateUUID(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)
	mustAdd(t, r, 0, uuidC, `http.path ^= "/foo"`)

	err := r.AddMatcher(1, uuidC, `http.path ^= "/bar"`)
	if !errors.Is(err, types.ErrDuplicateUUID) {
		t.Fatalf("AddMatcher() error = %v, want ErrDuplicateUUID", err)
	}
	if err.Error() != "UUID already exists" {
		t.Errorf("error = %q, want %q", err.Error(), "UUID already exists")
	}

	// The failed add must not have touched the installed matcher.
	ctx := NewContext(schema)
	addString(t, ctx, "http.path", "/foo")
	if !r.Execute(ctx) {
		t.Error("Execute() = false, want original matcher intact")
	}
}

func TestRouter_FailedAddInstallsNothing(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)

	if err := r.AddMatcher(0, uuidC, "syntactically broken ==="); err == nil {
		t.Fatal("AddMatcher() error = nil, want parse error")
	}
	if err := r.AddMatcher(0, uuidC, "unknown.field == 1"); err == nil {
		t.Fatal("AddMatcher() error = nil, want bind error")
	}

	if got := r.MatcherCount(); got != 0 {
		t.Errorf("MatcherCount() = %d, want 0", got)
	}
	if got := len(r.Fields()); got != 0 {
		t.Errorf("len(Fields()) = %d, want 0", got)
	}

	// The uuid from the failed adds stays available.
	mustAdd(t, r, 0, uuidC, `http.path ^= "/foo"`)
}

func TestRouter_RemoveMatcher(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)
	mustAdd(t, r, 7, uuidC, `http.path ^= "/foo"`)

	if r.RemoveMatcher(8, uuidC) {
		t.Error("RemoveMatcher() with wrong priority = true, want false")
	}
	if !r.RemoveMatcher(7, uuidC) {
		t.Error("RemoveMatcher() = false, want true")
	}
	if r.RemoveMatcher(7, uuidC) {
		t.Error("second RemoveMatcher() = true, want false")
	}

	ctx := NewContext(schema)
	addString(t, ctx, "http.path", "/foo")
	if r.Execute(ctx) {
		t.Error("Execute() after removal = true, want false")
	}
}

func TestRouter_AddRemoveRestoresState(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)
	if err := r.EnablePrefilter("http.path"); err != nil {
		t.Fatalf("EnablePrefilter() error = %v, want nil", err)
	}
	mustAdd(t, r, 1, uuidC, `http.path ^= "/base"`)

	baseFields := r.Fields()
	baseCount := r.MatcherCount()

	// Add-then-remove must restore router and prefilter state exactly.
	mustAdd(t, r, 2, uuidD, `http.path ^= "/other" && tcp.port == 80`)
	if !r.RemoveMatcher(2, uuidD) {
		t.Fatal("RemoveMatcher() = false, want true")
	}

	if diff := cmp.Diff(baseFields, r.Fields()); diff != "" {
		t.Errorf("Fields() not restored (-before +after):\n%s", diff)
	}
	if got := r.MatcherCount(); got != baseCount {
		t.Errorf("MatcherCount() = %d, want %d", got, baseCount)
	}

	// Prefilter must still route to the surviving matcher and not to the
	// removed one.
	ctx := NewContext(schema)
	addString(t, ctx, "http.path", "/base/x")
	if !r.Execute(ctx) || ctx.Result.UUID != uuidC {
		t.Error("Execute() after add/remove cycle does not reach surviving matcher")
	}

	ctx.Reset()
	addString(t, ctx, "http.path", "/other/x")
	if err := ctx.AddValue("tcp.port", types.IntValue(80)); err != nil {
		t.Fatalf("AddValue() error = %v, want nil", err)
	}
	if r.Execute(ctx) {
		t.Error("Execute() matched a removed matcher")
	}
}

func TestRouter_FieldsWithIndex(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)
	mustAdd(t, r, 0, uuidC, `http.path ^= "/foo" && tcp.port == 80`)
	mustAdd(t, r, 1, uuidD, "l3.ip in 10.0.0.0/8")

	fields := r.Fields()
	want := []string{"http.path", "l3.ip", "tcp.port"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("Fields() mismatch (-want +got):\n%s", diff)
	}

	withIndex := r.FieldsWithIndex()
	for i, f := range fields {
		if withIndex[f] != i {
			t.Errorf("FieldsWithIndex()[%q] = %d, want %d", f, withIndex[f], i)
		}
	}
}

func TestRouter_SchemaMismatchRejected(t *testing.T) {
	schemaA := testSchema()
	schemaB := testSchema()

	r := NewRouter(schemaA)
	mustAdd(t, r, 0, uuidC, `http.path ^= "/"`)

	// Same field layout, different schema instance: execution refuses.
	ctx := NewContext(schemaB)
	addString(t, ctx, "http.path", "/foo")
	if r.Execute(ctx) {
		t.Error("Execute() with foreign schema = true, want false")
	}
}

func TestRouter_ExecuteWithPrefilter(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)
	if err := r.EnablePrefilter("http.path"); err != nil {
		t.Fatalf("EnablePrefilter() error = %v, want nil", err)
	}

	mustAdd(t, r, 3, uuidC, `http.path ^= "/api/v1"`)
	mustAdd(t, r, 2, uuidD, `http.path ~ r#"^/static/.*\.png$"#`)
	// Unbounded: contains gives no prefix evidence.
	mustAdd(t, r, 1, uuidE, `http.path contains "health"`)

	tests := []struct {
		path string
		want uuid.UUID
	}{
		{"/api/v1/users", uuidC},
		{"/static/logo.png", uuidD},
		{"/internal/healthz", uuidE},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ctx := NewContext(schema)
			addString(t, ctx, "http.path", tt.path)
			if !r.Execute(ctx) {
				t.Fatalf("Execute(%q) = false, want true", tt.path)
			}
			if ctx.Result.UUID != tt.want {
				t.Errorf("Result.UUID = %s, want %s", ctx.Result.UUID, tt.want)
			}
		})
	}

	ctx := NewContext(schema)
	addString(t, ctx, "http.path", "/nothing/matches")
	if r.Execute(ctx) {
		t.Error("Execute() = true, want false")
	}
}

func TestRouter_EnablePrefilterValidation(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)

	if err := r.EnablePrefilter("no.such.field"); err == nil {
		t.Error("EnablePrefilter(unknown) error = nil, want UnknownFieldError")
	}
	if err := r.EnablePrefilter("tcp.port"); err == nil {
		t.Error("EnablePrefilter(int field) error = nil, want type error")
	}
	if err := r.EnablePrefilter("http.path"); err != nil {
		t.Errorf("EnablePrefilter(http.path) error = %v, want nil", err)
	}
}

func TestRouter_PrefilterMultiValueConjunction(t *testing.T) {
	schema := testSchema()
	r := NewRouter(schema)
	if err := r.EnablePrefilter("http.headers.tag"); err != nil {
		t.Fatalf("EnablePrefilter() error = %v, want nil", err)
	}
	// Satisfiable only when the field carries two values; the prefilter
	// must not eliminate it.
	mustAdd(t, r, 0, uuidC, `http.headers.tag ^= "blue" && http.headers.tag ^= "green"`)

	ctx := NewContext(schema)
	addString(t, ctx, "http.headers.tag", "blue-1")
	addString(t, ctx, "http.headers.tag", "green-2")

	if !r.Execute(ctx) {
		t.Error("Execute() = false, want true (both conjuncts hold through different values)")
	}
}

// Prefilter equivalence: execution with a prefilter returns the same
// outcome and metadata as execution without one.
func TestRouter_PrefilterDoesNotChangeSemantics(t *testing.T) {
	schema := testSchema()

	ruleSet := []struct {
		priority uint64
		id       uuid.UUID
		atc      string
	}{
		{10, uuid.MustParse("00000000-0000-0000-0000-00000000000a"), `http.path ^= "/api/v1" && tcp.port == 80`},
		{9, uuid.MustParse("00000000-0000-0000-0000-00000000000b"), `http.path ^= "/api"`},
		{8, uuid.MustParse("00000000-0000-0000-0000-00000000000c"), `http.path ~ r#"^/assets/|^/static/"#`},
		{7, uuid.MustParse("00000000-0000-0000-0000-00000000000d"), `http.path =^ ".ico"`},
		{6, uuid.MustParse("00000000-0000-0000-0000-00000000000e"), `!(http.path ^= "/api") && http.path contains "admin"`},
		{5, uuid.MustParse("00000000-0000-0000-0000-00000000000f"), `lower(http.path) ^= "/mixed"`},
		// Satisfiable only through two different values of the field.
		{4, uuid.MustParse("00000000-0000-0000-0000-000000000010"), `http.path ^= "/blue" && http.path ^= "/green"`},
	}

	paths := []string{
		"/api/v1/users", "/api/v2/users", "/api", "/assets/app.js",
		"/static/app.css", "/favicon.ico", "/admin/panel", "/MIXED/Case",
		"/", "", "/apix", "/static", "/ADMIN",
	}
	ports := []int64{80, 443}

	plain := NewRouter(schema)
	filtered := NewRouter(schema)
	if err := filtered.EnablePrefilter("http.path"); err != nil {
		t.Fatalf("EnablePrefilter() error = %v, want nil", err)
	}
	for _, rule := range ruleSet {
		mustAdd(t, plain, rule.priority, rule.id, rule.atc)
		mustAdd(t, filtered, rule.priority, rule.id, rule.atc)
	}

	for _, path := range paths {
		for _, port := range ports {
			name := fmt.Sprintf("%s:%d", path, port)
			t.Run(name, func(t *testing.T) {
				run := func(r *Router) (bool, *Match) {
					ctx := NewContext(schema)
					addString(t, ctx, "http.path", path)
					if err := ctx.AddValue("tcp.port", types.IntValue(port)); err != nil {
						t.Fatalf("AddValue() error = %v, want nil", err)
					}
					ok := r.Execute(ctx)
					return ok, ctx.Result
				}

				gotPlain, resPlain := run(plain)
				gotFiltered, resFiltered := run(filtered)

				if gotPlain != gotFiltered {
					t.Fatalf("outcome differs: plain=%v filtered=%v", gotPlain, gotFiltered)
				}
				if gotPlain {
					valueEq := cmp.Comparer(func(x, y types.Value) bool { return x.Equal(y) })
					if diff := cmp.Diff(resPlain, resFiltered, valueEq); diff != "" {
						t.Errorf("result differs (-plain +filtered):\n%s", diff)
					}
				}
			})
		}
	}
}

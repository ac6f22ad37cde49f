package scope

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		directive string
		want      Spec
		wantErr   bool
	}{
		{"mylib", Spec{Kind: KindStatic, Arg: "mylib"}, false},
		{"  mylib  ", Spec{Kind: KindStatic, Arg: "mylib"}, false},
		{"@git", Spec{Kind: KindGit, Arg: GitStaged}, false},
		{"@git:staged", Spec{Kind: KindGit, Arg: GitStaged}, false},
		{"@git:unstaged", Spec{Kind: KindGit, Arg: GitUnstaged}, false},
		{"@git:lastcommit", Spec{Kind: KindGit, Arg: GitLastCommit}, false},
		{"@git:conflicts", Spec{Kind: KindGit, Arg: GitConflicts}, false},
		{"@git:branch", Spec{Kind: KindGit, Arg: "branch"}, false},
		{"@git:branch:release", Spec{Kind: KindGit, Arg: "branch:release"}, false},
		{"@recent", Spec{Kind: KindRecent}, false},
		{"@dir:src/api", Spec{Kind: KindDirectory, Arg: "src/api"}, false},
		{`@search:"TODO"`, Spec{Kind: KindSearch, Arg: "TODO"}, false},
		{"@search:TODO", Spec{Kind: KindSearch, Arg: "TODO"}, false},
		{"@url:example.com/docs", Spec{Kind: KindRemote, Arg: "example.com/docs"}, false},
		{"@related:src/api/handler.go", Spec{Kind: KindRelated, Arg: "src/api/handler.go"}, false},
		{`@error:"File \"main.go\", line 3"`, Spec{Kind: KindTrace, Arg: `File \"main.go\", line 3`}, false},
		{"", Spec{}, true},
		{"@dir:", Spec{}, true},
		{"@search:", Spec{}, true},
		{"@related:", Spec{}, true},
		{"@error:", Spec{}, true},
		{"@git:upstream", Spec{}, true},
		{"@git:branch:", Spec{}, true},
		{"@bogus:thing", Spec{}, true},
		{"bad name/with/slashes", Spec{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.directive, func(t *testing.T) {
			got, err := Parse(tt.directive)
			if tt.wantErr {
				if !errors.Is(err, ErrBadDirective) {
					t.Fatalf("Parse(%q) error = %v, want ErrBadDirective", tt.directive, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.directive, err)
			}
			if got.Kind != tt.want.Kind || got.Arg != tt.want.Arg {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.directive, got, tt.want)
			}
		})
	}
}

func TestSpecDirective_RoundTrip(t *testing.T) {
	for _, directive := range []string{
		"mylib", "@git:staged", "@git:unstaged", "@git:lastcommit", "@git:branch:release",
		"@recent", "@dir:src", `@search:"TODO"`, "@url:example.com",
		"@related:src/handler.go", `@error:"panic in worker"`,
	} {
		spec, err := Parse(directive)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", directive, err)
		}
		again, err := Parse(spec.Directive())
		if err != nil {
			t.Fatalf("Parse(Directive()) error = %v for %q", err, directive)
		}
		if again.Kind != spec.Kind || again.Arg != spec.Arg {
			t.Fatalf("directive round trip changed spec: %+v vs %+v", spec, again)
		}
	}
}

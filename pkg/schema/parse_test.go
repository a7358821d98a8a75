package schema

import "testing"

const personSchemaJSON = `{
  "typespace": {
    "types": [
      {
        "tag": "Product",
        "elements": [
          {"name": "id", "type": {"tag": "U64"}},
          {"name": "name", "type": {"tag": "String"}},
          {"name": "age", "type": {"tag": "U32"}},
          {"name": "nickname", "type": {"tag": "Sum", "variants": [
            {"name": "some", "type": {"tag": "String"}},
            {"name": "none"}
          ]}}
        ]
      },
      {"tag": "Ref", "index": 0}
    ]
  },
  "tables": [
    {"name": "person", "product_type_ref": 0, "primary_key": [0]}
  ],
  "reducers": [
    {"name": "add_person", "params": {"tag": "Product", "elements": [
      {"name": "name", "type": {"tag": "String"}},
      {"name": "age", "type": {"tag": "U32"}}
    ]}},
    {"name": "add_person_indirect", "params": {"tag": "Ref", "index": 1}}
  ]
}`

func TestParseTableAndReducer(t *testing.T) {
	s, err := Parse([]byte(personSchemaJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cols, err := s.ColumnsFor("person")
	if err != nil {
		t.Fatalf("ColumnsFor: %v", err)
	}
	if len(cols) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(cols))
	}
	if cols[0].Name != "id" || cols[0].Type.Kind != KindU64 {
		t.Errorf("col 0 = %+v", cols[0])
	}
	if cols[3].Type.Kind != KindOption {
		t.Errorf("expected nickname to resolve to Option, got %v", cols[3].Type.Kind)
	}

	pk, err := s.PrimaryKeyFor("person")
	if err != nil || len(pk) != 1 || pk[0] != 0 {
		t.Errorf("PrimaryKeyFor = %v, err = %v", pk, err)
	}

	if _, err := s.ColumnsFor("nope"); err == nil {
		t.Error("expected unknown_table error")
	}

	reducer, ok := s.Reducer("add_person")
	if !ok || len(reducer.Params) != 2 {
		t.Fatalf("reducer add_person = %+v, ok = %v", reducer, ok)
	}

	// Reducer resolved indirectly through a Ref must inline to the same
	// shape as the table it points at (arena[1] -> Ref(0) -> product).
	indirect, ok := s.Reducer("add_person_indirect")
	if !ok || len(indirect.Params) != 4 {
		t.Fatalf("reducer add_person_indirect = %+v, ok = %v", indirect, ok)
	}
}

func TestNoRefSurvivesResolution(t *testing.T) {
	s, err := Parse([]byte(personSchemaJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for _, tbl := range s.Tables {
		for _, c := range tbl.Columns {
			if AnyRef(c.Type) {
				t.Errorf("table %q column %q still contains a Ref after resolution", tbl.Name, c.Name)
			}
		}
	}
	for _, r := range s.Reducers {
		for _, c := range r.Params {
			if AnyRef(c.Type) {
				t.Errorf("reducer %q param %q still contains a Ref after resolution", r.Name, c.Name)
			}
		}
	}
}

func TestUnresolvedRefBoundsRecursion(t *testing.T) {
	doc := `{
      "typespace": {"types": [{"tag": "Ref", "index": 0}]},
      "tables": [{"name": "loop", "product_type_ref": 0, "primary_key": []}],
      "reducers": []
    }`
	_, err := Parse([]byte(doc))
	if err == nil {
		t.Fatal("expected unresolved_ref error for a self-referential type")
	}
}

func TestUnknownTableAndReducer(t *testing.T) {
	s, _ := Parse([]byte(personSchemaJSON))
	if _, err := s.ColumnsFor("ghost"); err == nil {
		t.Error("expected error for unknown table")
	}
	if _, ok := s.Reducer("ghost"); ok {
		t.Error("expected ok=false for unknown reducer")
	}
}

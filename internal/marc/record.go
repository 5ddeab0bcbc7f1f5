package marc

import (
	"regexp"
	"strconv"
)

// Subfield is one (code, value) pair inside a data field.
type Subfield struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// Field is one record field. Control fields carry Value; data fields carry
// indicators and an ordered subfield sequence.
type Field struct {
	Tag       string     `json:"tag"`
	Ind1      string     `json:"ind1,omitempty"`
	Ind2      string     `json:"ind2,omitempty"`
	Value     string     `json:"value,omitempty"`
	Subfields []Subfield `json:"subfields,omitempty"`
}

// Record is the domain MARC record: leader plus an ordered field sequence.
// It is a value type; Clone produces an independent deep copy and every
// mutation helper works on the receiver only.
type Record struct {
	Leader string  `json:"leader"`
	Fields []Field `json:"fields"`
}

// IsDatafieldTag reports whether a tag addresses a data field. A tag counts
// as data when it parses numerically and is >= 10; non-numeric synthetic
// tags (such as SID) are treated as control-like by subfield helpers.
func IsDatafieldTag(tag string) bool {
	n, err := strconv.Atoi(tag)
	if err != nil {
		return false
	}
	return n >= 10
}

// Subfield returns the first subfield value for code.
func (f Field) Subfield(code string) (string, bool) {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return sf.Value, true
		}
	}
	return "", false
}

// HasSubfield reports whether the field carries an exact (code, value) pair.
func (f Field) HasSubfield(code, value string) bool {
	for _, sf := range f.Subfields {
		if sf.Code == code && sf.Value == value {
			return true
		}
	}
	return false
}

// Equal compares two fields structurally.
func (f Field) Equal(other Field) bool {
	if f.Tag != other.Tag || f.Ind1 != other.Ind1 || f.Ind2 != other.Ind2 || f.Value != other.Value {
		return false
	}
	if len(f.Subfields) != len(other.Subfields) {
		return false
	}
	for i := range f.Subfields {
		if f.Subfields[i] != other.Subfields[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent deep copy of the field.
func (f Field) Clone() Field {
	cp := f
	if f.Subfields != nil {
		cp.Subfields = make([]Subfield, len(f.Subfields))
		copy(cp.Subfields, f.Subfields)
	}
	return cp
}

// Clone returns an independent deep copy of the record.
func (r Record) Clone() Record {
	cp := Record{Leader: r.Leader}
	if r.Fields != nil {
		cp.Fields = make([]Field, 0, len(r.Fields))
		for _, f := range r.Fields {
			cp.Fields = append(cp.Fields, f.Clone())
		}
	}
	return cp
}

// Equal compares two records structurally.
func (r Record) Equal(other Record) bool {
	if r.Leader != other.Leader || len(r.Fields) != len(other.Fields) {
		return false
	}
	for i := range r.Fields {
		if !r.Fields[i].Equal(other.Fields[i]) {
			return false
		}
	}
	return true
}

// Get returns the fields whose tag matches the pattern, in record order.
func (r Record) Get(tagPattern *regexp.Regexp) []Field {
	var out []Field
	for _, f := range r.Fields {
		if tagPattern.MatchString(f.Tag) {
			out = append(out, f.Clone())
		}
	}
	return out
}

// GetTag returns the fields carrying exactly the given tag.
func (r Record) GetTag(tag string) []Field {
	var out []Field
	for _, f := range r.Fields {
		if f.Tag == tag {
			out = append(out, f.Clone())
		}
	}
	return out
}

// Datafields returns the data fields of the record (numeric tag >= 10).
func (r Record) Datafields() []Field {
	var out []Field
	for _, f := range r.Fields {
		if IsDatafieldTag(f.Tag) {
			out = append(out, f.Clone())
		}
	}
	return out
}

// InsertField adds a field keeping the tag ordering of the record: the new
// field lands after the last existing field whose tag sorts at or before it.
func (r *Record) InsertField(field Field) {
	idx := len(r.Fields)
	for i := len(r.Fields) - 1; i >= 0; i-- {
		if r.Fields[i].Tag <= field.Tag {
			idx = i + 1
			break
		}
		idx = i
	}
	r.Fields = append(r.Fields, Field{})
	copy(r.Fields[idx+1:], r.Fields[idx:])
	r.Fields[idx] = field.Clone()
}

// InsertFields adds each field in turn via InsertField.
func (r *Record) InsertFields(fields []Field) {
	for _, f := range fields {
		r.InsertField(f)
	}
}

// RemoveFields deletes every field structurally equal to one of the given
// fields. Fields not present are ignored.
func (r *Record) RemoveFields(fields ...Field) {
	if len(fields) == 0 {
		return
	}
	kept := r.Fields[:0]
	for _, existing := range r.Fields {
		matched := false
		for _, target := range fields {
			if existing.Equal(target) {
				matched = true
				break
			}
		}
		if !matched {
			kept = append(kept, existing)
		}
	}
	r.Fields = kept
}

// ReplaceFields removes the old fields and inserts the new ones in tag order.
func (r *Record) ReplaceFields(old []Field, replacement []Field) {
	r.RemoveFields(old...)
	r.InsertFields(replacement)
}

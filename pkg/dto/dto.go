// Package dto defines the ingress/egress wire contracts the core
// consumes from and hands back to the (out-of-scope) HTTP frontend,
// per §6's EXTERNAL INTERFACES: CreateVectorRequest is a tagged union
// keyed by index_type (and, for sparse, isIDF), decoded with
// json-iterator so the core can reject duplicate fields and unknown
// tag values the way the original dtos.rs's hand-rolled Visitor does,
// rather than silently overwriting or ignoring them.
package dto

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/cosdata/vecgraph/internal/errs"
)

// VectorID is the caller-supplied identifier string for a vector.
type VectorID string

// SparsePair is one (dimension index, weight) entry of a sparse
// vector, zipped on decode from the wire's separate values[]/indices[]
// arrays.
type SparsePair struct {
	Index uint32
	Value float32
}

// CreateDenseVectorRequest carries a dense vector insert.
type CreateDenseVectorRequest struct {
	ID       VectorID
	Values   []float32
	Metadata map[string]interface{}
}

// CreateSparseVectorRequest carries an explicit sparse vector insert.
type CreateSparseVectorRequest struct {
	ID     VectorID
	Values []SparsePair
}

// CreateSparseIdfRequest carries a text document indexed by the TF-IDF
// path; out of this core's scope beyond the shared DTO shape.
type CreateSparseIdfRequest struct {
	ID   VectorID
	Text string
}

// VectorKind discriminates CreateVectorRequest's tagged union.
type VectorKind uint8

const (
	DenseKind VectorKind = iota
	SparseKind
	SparseIdfKind
)

// CreateVectorRequest is the decoded tagged union of §6's
// CreateVectorRequest: exactly one of Dense/Sparse/SparseIdf is set,
// selected by Kind.
type CreateVectorRequest struct {
	Kind      VectorKind
	Dense     *CreateDenseVectorRequest
	Sparse    *CreateSparseVectorRequest
	SparseIdf *CreateSparseIdfRequest
}

// UpdateVectorRequest carries a version update to an existing vector.
type UpdateVectorRequest struct {
	Values []float32
}

// SimilarVector is one ranked ANN search result, per §6.
type SimilarVector struct {
	ID    VectorID `json:"id"`
	Score float32  `json:"score"`
}

// CreateVectorResponse echoes the stored representation back to the
// caller, per §6.
type CreateVectorResponse struct {
	ID       VectorID               `json:"id"`
	Values   []float32              `json:"values,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func dupField(name string) error {
	return &errs.SerializationError{Reason: fmt.Sprintf("duplicate field %q", name)}
}

func unknownField(name string) error {
	return &errs.SerializationError{Reason: fmt.Sprintf("unknown field %q", name)}
}

func unknownVariant(indexType string) error {
	return &errs.SerializationError{Reason: fmt.Sprintf("unknown_variant: index_type %q", indexType)}
}

func missingField(name string) error {
	return &errs.SerializationError{Reason: fmt.Sprintf("missing field %q", name)}
}

// readFlatFields walks a single top-level JSON object and returns its
// fields as raw sub-documents, failing fast on any repeated key. This
// mirrors the Rust visitor's per-key duplicate_field check, which
// serde's derive macros do not give you for free on a flattened map.
func readFlatFields(data []byte) (map[string]jsoniter.RawMessage, error) {
	iter := jsoniter.ParseBytes(jsoniter.ConfigDefault, data)
	fields := make(map[string]jsoniter.RawMessage)
	for field := iter.ReadObject(); field != ""; field = iter.ReadObject() {
		if _, dup := fields[field]; dup {
			return nil, dupField(field)
		}
		raw := iter.SkipAndReturnBytes()
		if iter.Error != nil {
			return nil, &errs.SerializationError{Reason: iter.Error.Error()}
		}
		fields[field] = raw
	}
	if iter.Error != nil {
		return nil, &errs.SerializationError{Reason: iter.Error.Error()}
	}
	return fields, nil
}

// DecodeCreateVectorRequest decodes a CreateVectorRequest per §6 and
// scenarios (d)-(f): sparse zips values[]/indices[] into SparsePair;
// any repeated top-level key is fatal (keys inside nested values such
// as metadata are not checked); an unrecognized
// index_type surfaces unknown_variant.
func DecodeCreateVectorRequest(data []byte) (*CreateVectorRequest, error) {
	fields, err := readFlatFields(data)
	if err != nil {
		return nil, err
	}

	indexTypeRaw, ok := fields["index_type"]
	if !ok {
		return nil, missingField("index_type")
	}
	var indexType string
	if err := jsoniter.Unmarshal(indexTypeRaw, &indexType); err != nil {
		return nil, &errs.SerializationError{Reason: "index_type: " + err.Error()}
	}

	isIDF := false
	if raw, ok := fields["isIDF"]; ok {
		if err := jsoniter.Unmarshal(raw, &isIDF); err != nil {
			return nil, &errs.SerializationError{Reason: "isIDF: " + err.Error()}
		}
	}

	switch {
	case indexType == "dense":
		dense, err := decodeDense(fields)
		if err != nil {
			return nil, err
		}
		return &CreateVectorRequest{Kind: DenseKind, Dense: dense}, nil
	case indexType == "sparse" && isIDF:
		idf, err := decodeSparseIdf(fields)
		if err != nil {
			return nil, err
		}
		return &CreateVectorRequest{Kind: SparseIdfKind, SparseIdf: idf}, nil
	case indexType == "sparse":
		sparse, err := decodeSparse(fields)
		if err != nil {
			return nil, err
		}
		return &CreateVectorRequest{Kind: SparseKind, Sparse: sparse}, nil
	default:
		return nil, unknownVariant(indexType)
	}
}

func decodeID(fields map[string]jsoniter.RawMessage) (VectorID, error) {
	raw, ok := fields["id"]
	if !ok {
		return "", missingField("id")
	}
	var id VectorID
	if err := jsoniter.Unmarshal(raw, &id); err != nil {
		return "", &errs.SerializationError{Reason: "id: " + err.Error()}
	}
	return id, nil
}

func decodeDense(fields map[string]jsoniter.RawMessage) (*CreateDenseVectorRequest, error) {
	for key := range fields {
		switch key {
		case "index_type", "isIDF", "id", "values", "metadata":
		default:
			return nil, unknownField(key)
		}
	}

	id, err := decodeID(fields)
	if err != nil {
		return nil, err
	}

	valuesRaw, ok := fields["values"]
	if !ok {
		return nil, missingField("values")
	}
	var values []float32
	if err := jsoniter.Unmarshal(valuesRaw, &values); err != nil {
		return nil, &errs.SerializationError{Reason: "values: " + err.Error()}
	}

	var metadata map[string]interface{}
	if raw, ok := fields["metadata"]; ok {
		if err := jsoniter.Unmarshal(raw, &metadata); err != nil {
			return nil, &errs.SerializationError{Reason: "metadata: " + err.Error()}
		}
	}

	return &CreateDenseVectorRequest{ID: id, Values: values, Metadata: metadata}, nil
}

func decodeSparse(fields map[string]jsoniter.RawMessage) (*CreateSparseVectorRequest, error) {
	for key := range fields {
		switch key {
		case "index_type", "isIDF", "id", "values", "indices":
		default:
			return nil, unknownField(key)
		}
	}

	id, err := decodeID(fields)
	if err != nil {
		return nil, err
	}

	valuesRaw, ok := fields["values"]
	if !ok {
		return nil, missingField("values")
	}
	var values []float32
	if err := jsoniter.Unmarshal(valuesRaw, &values); err != nil {
		return nil, &errs.SerializationError{Reason: "values: " + err.Error()}
	}

	indicesRaw, ok := fields["indices"]
	if !ok {
		return nil, missingField("indices")
	}
	var indices []uint32
	if err := jsoniter.Unmarshal(indicesRaw, &indices); err != nil {
		return nil, &errs.SerializationError{Reason: "indices: " + err.Error()}
	}

	if len(indices) != len(values) {
		return nil, &errs.SerializationError{Reason: "sparse vector values/indices length mismatch"}
	}

	pairs := make([]SparsePair, len(values))
	for i := range values {
		pairs[i] = SparsePair{Index: indices[i], Value: values[i]}
	}

	return &CreateSparseVectorRequest{ID: id, Values: pairs}, nil
}

func decodeSparseIdf(fields map[string]jsoniter.RawMessage) (*CreateSparseIdfRequest, error) {
	for key := range fields {
		switch key {
		case "index_type", "isIDF", "id", "text":
		default:
			return nil, unknownField(key)
		}
	}

	id, err := decodeID(fields)
	if err != nil {
		return nil, err
	}

	textRaw, ok := fields["text"]
	if !ok {
		return nil, missingField("text")
	}
	var text string
	if err := jsoniter.Unmarshal(textRaw, &text); err != nil {
		return nil, &errs.SerializationError{Reason: "text: " + err.Error()}
	}

	return &CreateSparseIdfRequest{ID: id, Text: text}, nil
}

// DecodeUpdateVectorRequest decodes an UpdateVectorRequest per §6.
func DecodeUpdateVectorRequest(data []byte) (*UpdateVectorRequest, error) {
	fields, err := readFlatFields(data)
	if err != nil {
		return nil, err
	}
	for key := range fields {
		if key != "values" {
			return nil, unknownField(key)
		}
	}
	raw, ok := fields["values"]
	if !ok {
		return nil, missingField("values")
	}
	var values []float32
	if err := jsoniter.Unmarshal(raw, &values); err != nil {
		return nil, &errs.SerializationError{Reason: "values: " + err.Error()}
	}
	return &UpdateVectorRequest{Values: values}, nil
}

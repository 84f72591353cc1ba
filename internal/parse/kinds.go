package parse

// Node kinds produced by tree-sitter-eiffel.
const (
	kindClassDeclaration = "class_declaration"
	kindClassName        = "class_name"
	kindHeaderMark       = "header_mark"
	kindNotes            = "notes"
	kindNoteEntry        = "note_entry"
	kindInheritance      = "inheritance"
	kindParent           = "parent"
	kindFeatureAdapt     = "feature_adaptation"
	kindRedefine         = "redefine"
	kindUndefine         = "undefine"
	kindSelect           = "select"
	kindFeatures         = "features"
	kindFeatureClause    = "feature_clause"
	kindClients          = "clients"
	kindFeatureDecl      = "feature_declaration"
	kindNewFeature       = "new_feature"
	kindFormalArguments  = "formal_arguments"
	kindTypeMark         = "type_mark"
	kindAttrOrRoutine    = "attribute_or_routine"
	kindLocals           = "local_declarations"
	kindFeatureBody      = "feature_body"
	kindDeferred         = "deferred"
	kindAttribute        = "attribute"
	kindRescue           = "rescue"
	kindPrecondition     = "precondition"
	kindPostcondition    = "postcondition"
	kindInvariant        = "invariant"
	kindAssertionClause  = "assertion_clause"
	kindTagMark          = "tag_mark"
	kindComment          = "comment"
	kindHeaderComment    = "header_comment"
	kindClassType        = "class_type"
	kindTupleType        = "tuple_type"
	kindAnchored         = "anchored"
	kindIdentifier       = "identifier"
	kindExtendedName     = "extended_feature_name"
	kindUnqualifiedCall  = "unqualified_call"
	kindActuals          = "actuals"
)

// Fixed capture names used by the embedded queries.
const (
	capName          = "name"
	capTag           = "tag"
	capExpression    = "expression"
	capClause        = "clause"
	capID            = "id"
	capArgument      = "argument"
	capCall          = "call"
	capParameterName = "parameter_name"
	capParameterType = "parameter_type"
	capRenameBefore  = "rename_before"
	capRenameAfter   = "rename_after"
	capClassName     = "class_name"
	capEiffelType    = "eiffel_type"
)

func isTypeKind(kind string) bool {
	return kind == kindClassType || kind == kindTupleType || kind == kindAnchored
}

func isCommentKind(kind string) bool {
	return kind == kindComment || kind == kindHeaderComment
}

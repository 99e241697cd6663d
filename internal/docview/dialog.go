package docview

import "fmt"

// DialogKind enumerates the dialogs of a document view. At most one is open
// at a time.
type DialogKind int

const (
	DialogNone DialogKind = iota
	DialogCreateDatabase
	DialogEditDatabase
	DialogCreateProperty
	DialogEditProperty
	DialogCreateRecord
	DialogEditRecord
	DialogViewRecord
	DialogCreateView
	DialogEditView
	DialogDuplicateView
	DialogDeleteView
	DialogShare
	DialogImport
	DialogExport
)

var dialogNames = map[DialogKind]string{
	DialogNone:           "none",
	DialogCreateDatabase: "create_database",
	DialogEditDatabase:   "edit_database",
	DialogCreateProperty: "create_property",
	DialogEditProperty:   "edit_property",
	DialogCreateRecord:   "create_record",
	DialogEditRecord:     "edit_record",
	DialogViewRecord:     "view_record",
	DialogCreateView:     "create_view",
	DialogEditView:       "edit_view",
	DialogDuplicateView:  "duplicate_view",
	DialogDeleteView:     "delete_view",
	DialogShare:          "share",
	DialogImport:         "import",
	DialogExport:         "export",
}

func (k DialogKind) String() string {
	if name, ok := dialogNames[k]; ok {
		return name
	}
	return fmt.Sprintf("dialog(%d)", int(k))
}

func (k DialogKind) Valid() bool {
	_, ok := dialogNames[k]
	return ok
}

// target names the kind of item a dialog acts on, if any.
type target int

const (
	targetNone target = iota
	targetRecord
	targetProperty
	targetView
)

func (k DialogKind) target() target {
	switch k {
	case DialogEditRecord, DialogViewRecord:
		return targetRecord
	case DialogEditProperty:
		return targetProperty
	case DialogEditView, DialogDuplicateView, DialogDeleteView:
		return targetView
	}
	return targetNone
}

package models

// ProductCategory distinguishes the two stock-keeping shapes: gas products
// track a single quantity, cylinders additionally split into full/empty pools.
type ProductCategory string

const (
	ProductCategoryGas      ProductCategory = "gas"
	ProductCategoryCylinder ProductCategory = "cylinder"
)

// CylinderState qualifies cylinder stock mutations.
type CylinderState string

const (
	CylinderStateFull  CylinderState = "full"
	CylinderStateEmpty CylinderState = "empty"
	CylinderStateNone  CylinderState = ""
)

// StockMutationKind names the ledger-affecting events.
type StockMutationKind string

const (
	StockMutationPurchase    StockMutationKind = "purchase"
	StockMutationSale        StockMutationKind = "sale"
	StockMutationDeposit     StockMutationKind = "deposit"
	StockMutationRefill      StockMutationKind = "refill"
	StockMutationReturn      StockMutationKind = "return"
	StockMutationTransferOut StockMutationKind = "transfer_out"
	StockMutationTransferIn  StockMutationKind = "transfer_in"
)

// AssignmentStatus lifecycle: assigned -> received -> consumed/returned/rejected.
type AssignmentStatus string

const (
	AssignmentStatusAssigned AssignmentStatus = "assigned"
	AssignmentStatusReceived AssignmentStatus = "received"
	AssignmentStatusConsumed AssignmentStatus = "consumed"
	AssignmentStatusReturned AssignmentStatus = "returned"
	AssignmentStatusRejected AssignmentStatus = "rejected"
)

// TransactionStatus applies to all three transaction record types.
type TransactionStatus string

const (
	TransactionStatusConfirmed TransactionStatus = "Confirmed"
	TransactionStatusVoid      TransactionStatus = "Void"
)

// AggregateCategory selects which counters of a daily aggregate row an event
// increments.
type AggregateCategory string

const (
	AggregateGasSale           AggregateCategory = "gas_sale"
	AggregateCylinderSaleFull  AggregateCategory = "cylinder_sale_full"
	AggregateCylinderSaleEmpty AggregateCategory = "cylinder_sale_empty"
	AggregateDeposit           AggregateCategory = "deposit"
	AggregateReturn            AggregateCategory = "return"
	AggregateRefill            AggregateCategory = "refill"
	AggregateTransfer          AggregateCategory = "transfer"
	AggregateReceivedBack      AggregateCategory = "received_back"
)

// CylinderTransactionKind names the cylinder-side document types.
type CylinderTransactionKind string

const (
	CylinderTxDeposit  CylinderTransactionKind = "deposit"
	CylinderTxRefill   CylinderTransactionKind = "refill"
	CylinderTxReturn   CylinderTransactionKind = "return"
	CylinderTxTransfer CylinderTransactionKind = "transfer"
)

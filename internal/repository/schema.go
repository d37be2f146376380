package repository

// Schema returns the idempotent DDL for every table this service reads or
// writes. ReplacingMergeTree on the log tables makes re-inserting the same
// row a no-op after merges, which is what append-only history needs.
func Schema(database string) []string {
	return []string{
		`CREATE DATABASE IF NOT EXISTS ` + database,
		`CREATE TABLE IF NOT EXISTS ` + database + `.candles_1m (
			bucket DateTime,
			ticker LowCardinality(String),
			open   Float64,
			high   Float64,
			low    Float64,
			close  Float64,
			vol    Float64
		) ENGINE = ReplacingMergeTree
		ORDER BY (ticker, bucket)`,
		`CREATE TABLE IF NOT EXISTS ` + database + `.candles_5m (
			bucket DateTime,
			ticker LowCardinality(String),
			open   Float64,
			high   Float64,
			low    Float64,
			close  Float64,
			vol    Float64
		) ENGINE = ReplacingMergeTree
		ORDER BY (ticker, bucket)`,
		`CREATE TABLE IF NOT EXISTS ` + database + `.opportunity_log (
			id                   String,
			ticker               LowCardinality(String),
			horizon              LowCardinality(String),
			issued_at            DateTime,
			probability_raw      Float64,
			probability_adjusted Float64,
			shrink_factor        Float64,
			regime_state         LowCardinality(String),
			attention_bucket     LowCardinality(String),
			target_atr           Float64,
			stop_atr             Float64
		) ENGINE = ReplacingMergeTree
		ORDER BY (id)`,
		`CREATE TABLE IF NOT EXISTS ` + database + `.performance_log (
			opportunity_id     String,
			ticker             LowCardinality(String),
			horizon            LowCardinality(String),
			issued_at          DateTime,
			regime_state       LowCardinality(String),
			attention_bucket   LowCardinality(String),
			probability_issued Float64,
			outcome            LowCardinality(String),
			entry_price        Float64,
			target_price       Float64,
			stop_price         Float64,
			atr_value          Float64,
			realized_mfe       Float64,
			realized_mae       Float64,
			mfe_atr            Float64,
			mae_atr            Float64,
			target_hit_first   UInt8,
			stop_hit_first     UInt8,
			neither_hit        UInt8,
			resolved_at        Nullable(DateTime),
			time_to_resolution Nullable(Int64),
			reason             String,
			evaluated_at       DateTime
		) ENGINE = ReplacingMergeTree(evaluated_at)
		ORDER BY (opportunity_id)`,
	}
}

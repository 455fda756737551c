// Package files reads and writes the CSV tables exchanged between pipeline stages
// and discovers partitioned artifacts under the data directory.
//
// Partitions follow the key=value directory convention, for example
//
//	raw/source_domain=eastmoney/interface=stock_zh_a_hist/date=static/part-0a1b2c3d4e.csv
//	silver/interface=stock_zh_a_hist/data.csv
package files

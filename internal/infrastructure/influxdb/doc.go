// Package influxdb stores the hearth's time-series history: device state
// snapshots from each successful poll, health transitions, and polling
// counters for failure-rate analysis.
//
// It wraps the official influxdb-client-go v2 library. Writes are batched
// and non-blocking (batch_size and flush_interval come from config.yaml);
// batch errors surface through the SetOnError callback, while connection
// and health-check errors are returned directly. All methods are safe for
// concurrent use.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSnapshot("loft-thermostat", snap.Seq, snap.Taken, snap.Data)
package influxdb

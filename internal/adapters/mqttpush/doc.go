// Package mqttpush implements a vendor adapter for devices that push
// their state as JSON messages over MQTT instead of answering polls.
//
// The adapter subscribes to the vendor's topic and forwards each decoded
// payload to the bound callback, normally a coordinator's Apply method,
// so push updates flow through the same snapshot pipeline as polled
// fetches. Fetch serves the periodic poll cycle by returning the most
// recently received payload, which turns the poll interval into a
// staleness check: a device that has never published reports a transient
// failure, and a broker outage reports a dropped session.
package mqttpush

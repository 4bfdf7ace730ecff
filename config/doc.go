// Package config loads daemon settings with koanf.
//
// Settings come from an HCL file and are overridden by environment
// variables named BLUEBOX_<SECTION>_<KEY>, for example
//
//	BLUEBOX_RADIO_FREQ=437500000
//	BLUEBOX_DISPATCH_STRICT_LENGTH=true
//	BLUEBOX_SPI_CE_PIN=GPIO25
//
// A sample file:
//
//	radio {
//	  freq      = 437425000
//	  csma_rssi = -95
//	}
//
//	dispatch {
//	  strict_length = false
//	}
//
//	bus {
//	  dir = "/tmp/bluebox-bus"
//	}
//
//	metrics {
//	  listen = ":9110"
//	  pprof  = true
//	}
//
//	mqtt {
//	  broker = "tcp://localhost:1883"
//	  topic  = "bluebox/config"
//	}
package config
